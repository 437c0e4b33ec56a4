package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/agenthands/hvaudit/internal/config"
	"github.com/agenthands/hvaudit/internal/core"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := core.NewAuditor(config.Default(), nil, nil)
	require.NoError(t, err)
	return NewServer(a, nil).SetupRouter()
}

func post(t *testing.T, r *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
}

func TestClassify(t *testing.T) {
	r := setupRouter(t)

	w := post(t, r, "/v1/classify", ClassifyRequest{Label: "RUN029_PC_REEXPORT"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "POSITIVE_CONTROL", gjson.Get(w.Body.String(), "kind").String())
	assert.Equal(t, "positive control packet", gjson.Get(w.Body.String(), "rule").String())

	w = post(t, r, "/v1/classify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolve(t *testing.T) {
	r := setupRouter(t)

	w := post(t, r, "/v1/resolve", ResolveRequest{Reference: "BASELINE", CandidateOne: "CAND_TAMPER", CandidateTwo: "CAND_NORMAL"})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "QMSv5_02", gjson.Get(body, "expected_match_candidate").String())
	assert.Equal(t, "QMSv5_01", gjson.Get(body, "expected_mismatch_candidate").String())
	assert.Equal(t, "A=BASELINE -> match=non-tamper", gjson.Get(body, "rule").String())
}

func TestResolveAmbiguous(t *testing.T) {
	r := setupRouter(t)

	w := post(t, r, "/v1/resolve", ResolveRequest{Reference: "TAMPER_REF", CandidateOne: "X_TAMPER", CandidateTwo: "Y_TAMPER"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	msg := gjson.Get(w.Body.String(), "error").String()
	assert.Contains(t, msg, "TAMPER_REF")
	assert.Contains(t, msg, "X_TAMPER")
	assert.Contains(t, msg, "Y_TAMPER")
}

const blindMap = "```json\n" + `{"schema": "SentinelQMSv5_BlindingMap@1.0", "jobs": [{"job_id": "StageIV_Node02", "arms": [
  {"group": "Baseline", "arm": "ARM_01", "A_src": "BASELINE", "QMSv5_01_src": "CAND_TAMPER", "QMSv5_02_src": "CAND_NORMAL"}]}]}` + "\n```\n"

const blindComparisons = `hv_record_id,node_id,group,arm,compare_folder,candidate_label,pass_fail
r1,Node02_HVT_A_COMPLETED,IIIA_Baseline,ARM_01,COMPARE_A_vs_QMSv5_01,QMSv5_01,FAIL
r2,Node02_HVT_A_COMPLETED,IIIA_Baseline,ARM_01,COMPARE_A_vs_QMSv5_02,QMSv5_02,PASS
`

func blindFixture(t *testing.T, mapContent string) BlindRequest {
	t.Helper()
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "stageIV.md")
	csvPath := filepath.Join(dir, "hvtA_comparisons.csv")
	require.NoError(t, os.WriteFile(mapPath, []byte(mapContent), 0o644))
	require.NoError(t, os.WriteFile(csvPath, []byte(blindComparisons), 0o644))
	return BlindRequest{BlindInput: core.BlindInput{
		PrimaryMap:  mapPath,
		Comparisons: csvPath,
		OutDir:      filepath.Join(dir, "out"),
	}}
}

func TestBlind(t *testing.T) {
	r := setupRouter(t)
	req := blindFixture(t, blindMap)

	w := post(t, r, "/v1/blind", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "mappings").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "records").Int())
	assert.Len(t, gjson.Get(body, "outputs").Array(), 2)
	assert.FileExists(t, filepath.Join(req.OutDir, "hvtA_comparisons__WITH_BLINDING.csv"))
}

func TestBlindAuditFailure(t *testing.T) {
	r := setupRouter(t)
	req := blindFixture(t, "```json\n"+`{"schema": "SomethingElse@2", "jobs": []}`+"\n```\n")

	w := post(t, r, "/v1/blind", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, gjson.Get(w.Body.String(), "error").String(), "schema mismatch")
	assert.NoDirExists(t, req.OutDir)
}

func TestBlindCollectsAll(t *testing.T) {
	r := setupRouter(t)
	req := blindFixture(t, "```json\n"+`{"schema": "SentinelQMSv5_BlindingMap@1.0", "jobs": [{"job_id": "StageIV_Node02", "arms": [
	  {"group": "Tamper", "arm": "ARM_01", "A_src": "TAMPER_REF", "QMSv5_01_src": "X_TAMPER", "QMSv5_02_src": "Y_TAMPER"},
	  {"group": "Tamper", "arm": "ARM_02", "A_src": "BASELINE", "QMSv5_01_src": "X_TAMPER", "QMSv5_02_src": "Y_TAMPER"}]}]}`+"\n```\n")
	req.NonStrict = true

	w := post(t, r, "/v1/blind", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, gjson.Get(w.Body.String(), "errors").Array(), 2)
}

func TestBlindRequiresInputs(t *testing.T) {
	r := setupRouter(t)
	w := post(t, r, "/v1/blind", map[string]string{"primary_map": "x.md"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
