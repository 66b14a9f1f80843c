// cmd/access-service/api_test.go
package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lead-access-service/internal/access"
	"lead-access-service/internal/common/config"
	"lead-access-service/internal/common/logger"
	"lead-access-service/internal/common/observability"
	"lead-access-service/internal/credits"
	"lead-access-service/internal/keyqueue"
	"lead-access-service/internal/people"
	"lead-access-service/internal/unlock"
)

var testTime = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func setupTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, func()) {
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}

	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	queue := keyqueue.New()
	ledger := access.NewLedger(db, queue, log)
	engine := credits.NewEngine(db, queue, config.CreditsConfig{
		DefaultFreeMail: 200,
		DefaultWorkMail: 500,
		Plans: map[string]config.PlanConfig{
			"STARTER": {Credits: 3000, DurationDays: 30},
		},
	}, log)
	store := people.NewStore(db, nil, 0, log)
	svc := unlock.NewService(db, ledger, engine, store, unlock.DefaultCostTable(), log)

	a := newAPI(svc, engine, nil, observability.New("api-test"), log)
	return a.routes(), mock, func() { db.Close() }
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func apiAccountColumns() []string {
	return []string{
		"user_id", "credits", "active_plan", "expires_at",
		"starter_remaining_days", "pro_remaining_days", "last_updated",
	}
}

func TestAPI_Unlock_RejectsBadRequests(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing userId", map[string]interface{}{"recordIds": []int64{1}, "accessType": "EMAIL"}},
		{"missing recordIds", map[string]interface{}{"userId": "u1", "accessType": "EMAIL"}},
		{"unknown access type", map[string]interface{}{"userId": "u1", "recordIds": []int64{1}, "accessType": "FULL"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doJSON(t, r, http.MethodPost, "/v1/unlock", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_Unlock_InsufficientCreditsMapsTo402(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	mock.ExpectQuery(`SELECT user_id, credits, active_plan`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(apiAccountColumns()).
			AddRow("u1", int64(0), "FREE", nil, 0, 0, testTime))

	w, body := doJSON(t, r, http.MethodPost, "/v1/unlock", map[string]interface{}{
		"userId":     "u1",
		"recordIds":  []int64{1},
		"accessType": "EMAIL",
	})

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "INSUFFICIENT_CREDITS", body["code"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_Balance_CreatesAccountLazily(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	mock.ExpectExec(`INSERT INTO credit_accounts`).
		WithArgs("u1", int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT user_id, credits, active_plan`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(apiAccountColumns()).
			AddRow("u1", int64(500), "FREE", nil, 0, 0, testTime))

	w, body := doJSON(t, r, http.MethodGet, "/v1/credits/balance?userId=u1&email=u1@acme.io", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(500), body["credits"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_Balance_RequiresUserID(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	w, _ := doJSON(t, r, http.MethodGet, "/v1/credits/balance", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_Purchase_UnknownPlanMapsTo400(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	w, body := doJSON(t, r, http.MethodPost, "/v1/plans/purchase", map[string]interface{}{
		"userId": "u1",
		"plan":   "PLATINUM",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PLAN", body["code"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_Purchase_CustomTopUpConvertsAmount(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	// 10 currency units buy 1000 credits; the plan is never touched.
	mock.ExpectQuery(`UPDATE credit_accounts`).
		WithArgs("u1", int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(1200)))

	w, body := doJSON(t, r, http.MethodPost, "/v1/plans/purchase", map[string]interface{}{
		"userId": "u1",
		"plan":   "CUSTOM",
		"amount": 10,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1200), body["credits"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_Purchase_CustomRequiresPositiveAmount(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	w, _ := doJSON(t, r, http.MethodPost, "/v1/plans/purchase", map[string]interface{}{
		"userId": "u1",
		"plan":   "CUSTOM",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPI_UnmatchedRouteIs404(t *testing.T) {
	r, mock, done := setupTestRouter(t)
	defer done()

	w, _ := doJSON(t, r, http.MethodGet, "/v1/nope", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
