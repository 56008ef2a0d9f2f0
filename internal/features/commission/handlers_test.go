package commission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/mlm-platform/internal/features/investments"
	"serotonyl.ru/mlm-platform/internal/features/settings"
)

func serve(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandlePurchase(t *testing.T) {
	st := newMemStore()
	buyer := st.addUser("B", "")
	pkg := st.addPackage("10", "10", "0")
	st.setWallet(buyer, "10")
	h := NewHandler(newTestEngine(st, clockwork.NewFakeClock()))

	rec := serve(h.HandlePurchase, `{"buyerId": 1, "packageId": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct {
		Investment struct {
			PackageID int64 `json:"packageId"`
		} `json:"investment"`
		Entries []json.RawMessage `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Entries, 1)
	assert.Equal(t, pkg, res.Investment.PackageID)

	rec = serve(h.HandlePurchase, `{"buyerId": 1, "packageId": 2}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "денег больше нет")

	rec = serve(h.HandlePurchase, `{"buyer": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h.HandlePurchase, `{"buyerId": 1, "packageId": 77}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleClick(t *testing.T) {
	st := newMemStore()
	st.setSettings(func(s *settings.Snapshot) {
		s.MintingCommission.Manual = settings.RateTable{NoInvestmentTier: "1"}
	})
	u := st.addUser("U", "")
	inv := st.addInvestment(u, "100", "100")
	st.addActivity(u, inv, 1, investments.MintingManual, "100")
	h := NewHandler(newTestEngine(st, clockwork.NewFakeClock()))

	rec := serve(h.HandleClick, `{"userId": 1, "mintingType": "MANUAL"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(h.HandleClick, `{"userId": 1, "mintingType": "MANUAL"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = serve(h.HandleClick, `{"userId": 1, "mintingType": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDepositApproved(t *testing.T) {
	st := newMemStore()
	st.addUser("U", "")
	h := NewHandler(newTestEngine(st, clockwork.NewFakeClock()))

	rec := serve(h.HandleDepositApproved, `{"receiverId": 1, "amount": "100", "creditDeposit": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireDec(t, "100", st.user(t, 1).WalletBalance)

	rec = serve(h.HandleDepositApproved, `{"receiverId": 1, "amount": "-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
