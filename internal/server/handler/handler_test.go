package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/service"
	"github.com/alanyoungcy/alphamarket/internal/view"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type fakeIdentity struct {
	configured bool
	users      []domain.Profile
	byAddr     map[string][]domain.Profile
	err        error
	gotFIDs    []uint64
	gotAddrs   []string
}

func (f *fakeIdentity) Configured() bool { return f.configured }

func (f *fakeIdentity) UsersByFIDs(_ context.Context, fids []uint64) ([]domain.Profile, error) {
	f.gotFIDs = fids
	return f.users, f.err
}

func (f *fakeIdentity) UsersByAddresses(_ context.Context, addrs []string) (map[string][]domain.Profile, error) {
	f.gotAddrs = addrs
	return f.byAddr, f.err
}

func getUsers(h *UsersHandler, query string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.GetUsers(rec, httptest.NewRequest(http.MethodGet, "/api/users"+query, nil))
	return rec
}

func TestUsersMissingKeyIsServerError(t *testing.T) {
	h := NewUsersHandler(&fakeIdentity{}, discardLogger())
	rec := getUsers(h, "?fids=1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgIdentityKeyMissing, decode(t, rec)["error"])
}

func TestUsersRequiresAParameter(t *testing.T) {
	h := NewUsersHandler(&fakeIdentity{configured: true}, discardLogger())
	rec := getUsers(h, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgUsersParamRequired, decode(t, rec)["error"])
}

func TestUsersByFIDsDropsInvalidEntries(t *testing.T) {
	id := &fakeIdentity{configured: true, users: []domain.Profile{{FID: 3, Username: "dwr"}}}
	h := NewUsersHandler(id, discardLogger())

	rec := getUsers(h, "?fids=3,%20x,0,-2,1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint64{3, 1}, id.gotFIDs)
	users := decode(t, rec)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "dwr", users[0].(map[string]any)["username"])
}

func TestUsersEmptyAfterFilteringSkipsUpstream(t *testing.T) {
	id := &fakeIdentity{configured: true}
	h := NewUsersHandler(id, discardLogger())

	rec := getUsers(h, "?fids=abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[]}`, rec.Body.String())
	assert.Nil(t, id.gotFIDs)

	rec = getUsers(h, "?addresses=nothex")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"usersByAddress":{}}`, rec.Body.String())
	assert.Nil(t, id.gotAddrs)
}

func TestUsersByAddressesLowercases(t *testing.T) {
	id := &fakeIdentity{configured: true, byAddr: map[string][]domain.Profile{
		"0xabc": {{FID: 9}},
	}}
	h := NewUsersHandler(id, discardLogger())

	rec := getUsers(h, "?addresses=0xABC,%200xDef")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"0xabc", "0xdef"}, id.gotAddrs)
	assert.Contains(t, decode(t, rec)["usersByAddress"], "0xabc")
}

func TestUsersUpstreamFailure(t *testing.T) {
	id := &fakeIdentity{configured: true, err: fmt.Errorf("neynar: %w", domain.ErrUpstream)}
	h := NewUsersHandler(id, discardLogger())
	rec := getUsers(h, "?fids=1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgUsersFetchFailed, decode(t, rec)["error"])
}

type fakeAlphas struct {
	listing   service.Listing
	detail    view.Detail
	err       error
	gotFilter view.Filter
	gotStart  uint64
	gotCount  uint64
	gotCaller common.Address
}

func (f *fakeAlphas) List(_ context.Context, fl view.Filter, start, count uint64) (service.Listing, error) {
	f.gotFilter, f.gotStart, f.gotCount = fl, start, count
	return f.listing, f.err
}

func (f *fakeAlphas) Mine(_ context.Context, creator common.Address, fl view.Filter) (service.Listing, error) {
	f.gotFilter, f.gotCaller = fl, creator
	return f.listing, f.err
}

func (f *fakeAlphas) Detail(_ context.Context, id uint64, caller common.Address, _ *time.Location) (view.Detail, error) {
	f.gotCaller = caller
	if f.err != nil {
		return view.Detail{}, f.err
	}
	d := f.detail
	d.ID = id
	return d, nil
}

func (f *fakeAlphas) LiveStats(context.Context, uint64) (domain.LiveStats, error) {
	return domain.LiveStats{
		CreatorStake:   big.NewInt(1),
		TotalOpponents: big.NewInt(2),
		TotalStaked:    big.NewInt(3),
		OpponentCount:  1,
	}, f.err
}

func (f *fakeAlphas) NextAlphaID(context.Context) (uint64, error) { return 42, f.err }

func serve(method, pattern, target string, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(method+" "+pattern, h)
	rec := httptest.NewRecorder()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, rd))
	return rec
}

func TestAlphaListDefaults(t *testing.T) {
	fa := &fakeAlphas{listing: service.Listing{Filter: view.FilterActive}}
	h := NewAlphaHandler(fa, nil, discardLogger())

	rec := serve(http.MethodGet, "/api/alphas", "/api/alphas", h.List, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, view.FilterActive, fa.gotFilter)
	assert.Equal(t, uint64(0), fa.gotStart)
	assert.Equal(t, uint64(service.MaxListingPage), fa.gotCount)
}

func TestAlphaListRejectsBadParams(t *testing.T) {
	h := NewAlphaHandler(&fakeAlphas{}, nil, discardLogger())
	for _, target := range []string{"/api/alphas?filter=soon", "/api/alphas?start=-1", "/api/alphas?count=x"} {
		rec := serve(http.MethodGet, "/api/alphas", target, h.List, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAlphaMineRequiresAddress(t *testing.T) {
	fa := &fakeAlphas{}
	h := NewAlphaHandler(fa, nil, discardLogger())

	rec := serve(http.MethodGet, "/api/alphas/mine", "/api/alphas/mine", h.Mine, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	addr := "0x1111111111111111111111111111111111111111"
	rec = serve(http.MethodGet, "/api/alphas/mine", "/api/alphas/mine?address="+addr, h.Mine, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.HexToAddress(addr), fa.gotCaller)
	assert.Equal(t, view.FilterAll, fa.gotFilter)
}

func TestAlphaDetailNotFound(t *testing.T) {
	fa := &fakeAlphas{err: fmt.Errorf("alpha_service: alpha 9: %w", domain.ErrNotFound)}
	h := NewAlphaHandler(fa, nil, discardLogger())
	rec := serve(http.MethodGet, "/api/alphas/{id}", "/api/alphas/9", h.Get, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlphaDetailBadID(t *testing.T) {
	h := NewAlphaHandler(&fakeAlphas{}, nil, discardLogger())
	rec := serve(http.MethodGet, "/api/alphas/{id}", "/api/alphas/abc", h.Get, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlphaDetailPassesCaller(t *testing.T) {
	fa := &fakeAlphas{}
	h := NewAlphaHandler(fa, nil, discardLogger())
	addr := "0x2222222222222222222222222222222222222222"
	rec := serve(http.MethodGet, "/api/alphas/{id}", "/api/alphas/5?address="+addr, h.Get, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.HexToAddress(addr), fa.gotCaller)
	assert.EqualValues(t, 5, decode(t, rec)["id"])
}

func TestAlphaStatsAndNextID(t *testing.T) {
	h := NewAlphaHandler(&fakeAlphas{}, nil, discardLogger())
	rec := serve(http.MethodGet, "/api/alphas/{id}/stats", "/api/alphas/3/stats", h.Stats, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", decode(t, rec)["totalStaked"])

	rec = serve(http.MethodGet, "/api/alphas/next-id", "/api/alphas/next-id", h.NextID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, decode(t, rec)["nextId"])
}

type fakeTokens struct {
	snaps map[string]*domain.TokenSnapshot
}

func (f fakeTokens) Token(_ context.Context, address string) *domain.TokenSnapshot {
	return f.snaps[strings.ToLower(address)]
}

type fakeMeta struct{ err error }

func (f fakeMeta) TokenMetadata(_ context.Context, token common.Address) (domain.TokenMetadata, error) {
	if f.err != nil {
		return domain.TokenMetadata{}, f.err
	}
	return domain.TokenMetadata{Address: token, Symbol: "WETH", Decimals: 18}, nil
}

const weth = "0x4200000000000000000000000000000000000006"

func TestTokenGet(t *testing.T) {
	market := fakeTokens{snaps: map[string]*domain.TokenSnapshot{weth: {Address: weth, Symbol: "WETH", PriceUSD: "3000"}}}
	h := NewTokenHandler(market, fakeMeta{}, nil, discardLogger())

	rec := serve(http.MethodGet, "/api/tokens/{address}", "/api/tokens/"+weth, h.Get, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "3000", body["market"].(map[string]any)["price_usd"])
	assert.Equal(t, "WETH", body["metadata"].(map[string]any)["symbol"])

	rec = serve(http.MethodGet, "/api/tokens/{address}", "/api/tokens/0x12", h.Get, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenGetUnavailable(t *testing.T) {
	h := NewTokenHandler(fakeTokens{}, fakeMeta{err: errors.New("no code")}, nil, discardLogger())
	rec := serve(http.MethodGet, "/api/tokens/{address}", "/api/tokens/"+weth, h.Get, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTokenFeaturedKeepsOrder(t *testing.T) {
	other := "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	market := fakeTokens{snaps: map[string]*domain.TokenSnapshot{weth: {Symbol: "WETH"}}}
	h := NewTokenHandler(market, nil, []string{weth, other}, discardLogger())

	rec := serve(http.MethodGet, "/api/tokens", "/api/tokens", h.Featured, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tokens := decode(t, rec)["tokens"].([]any)
	require.Len(t, tokens, 2)
	assert.Equal(t, weth, tokens[0].(map[string]any)["address"])
	assert.NotNil(t, tokens[0].(map[string]any)["market"])
	assert.Equal(t, other, tokens[1].(map[string]any)["address"])
	assert.Nil(t, tokens[1].(map[string]any)["market"])
}

type fakeAccounts struct{ got common.Address }

func (f *fakeAccounts) Account(_ context.Context, addr common.Address) (service.Account, error) {
	f.got = addr
	return service.Account{Address: addr.Hex(), Balance: "1.5"}, nil
}

type fixedWallet struct {
	addr common.Address
	ok   bool
}

func (w fixedWallet) Wallet() (common.Address, bool) { return w.addr, w.ok }

func TestWalletDefaultsToServiceWallet(t *testing.T) {
	svc := common.HexToAddress("0x3333333333333333333333333333333333333333")
	accts := &fakeAccounts{}
	h := NewWalletHandler(accts, fixedWallet{addr: svc, ok: true}, discardLogger())

	rec := serve(http.MethodGet, "/api/wallet", "/api/wallet", h.Get, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, svc, accts.got)
	assert.Equal(t, true, decode(t, rec)["connected"])
}

func TestWalletWithoutKey(t *testing.T) {
	h := NewWalletHandler(&fakeAccounts{}, fixedWallet{}, discardLogger())
	rec := serve(http.MethodGet, "/api/wallet", "/api/wallet", h.Get, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connected":false}`, rec.Body.String())
}

type fakeOps map[string]domain.Operation

func (f fakeOps) Get(id string) (domain.Operation, error) {
	op, ok := f[id]
	if !ok {
		return domain.Operation{}, fmt.Errorf("operations: %s: %w", id, domain.ErrNotFound)
	}
	return op, nil
}

type fakeLog struct {
	msgs     []domain.StreamMessage
	gotAfter string
	gotCount int
}

func (f *fakeLog) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.gotAfter, f.gotCount = lastID, count
	return f.msgs, nil
}

func TestOperationGet(t *testing.T) {
	h := NewOperationHandler(fakeOps{"op-1": {ID: "op-1", State: domain.TxSubmitted}}, nil, discardLogger())

	rec := serve(http.MethodGet, "/api/operations/{id}", "/api/operations/op-1", h.Get, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "submitted", decode(t, rec)["state"])

	rec = serve(http.MethodGet, "/api/operations/{id}", "/api/operations/nope", h.Get, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperationEventsPage(t *testing.T) {
	ev, err := json.Marshal(domain.TxEvent{OperationID: "op-1", State: domain.TxConfirmed})
	require.NoError(t, err)
	log := &fakeLog{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: ev},
		{ID: "1-1", Payload: []byte("{bad")},
	}}
	h := NewOperationHandler(fakeOps{}, log, discardLogger())

	rec := serve(http.MethodGet, "/api/operations/events", "/api/operations/events?count=10", h.Events, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", log.gotAfter)
	assert.Equal(t, 10, log.gotCount)
	body := decode(t, rec)
	assert.Len(t, body["events"], 1)
	assert.Equal(t, "1-1", body["next"])
}

func TestOperationEventsDisabled(t *testing.T) {
	h := NewOperationHandler(fakeOps{}, nil, discardLogger())
	rec := serve(http.MethodGet, "/api/operations/events", "/api/operations/events", h.Events, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingWriter struct{ err error }

func (f failingWriter) Create(context.Context, service.CreateInput) (*service.Pending, error) {
	return nil, f.err
}
func (f failingWriter) Bet(context.Context, service.BetInput) (*service.Pending, error) {
	return nil, f.err
}
func (f failingWriter) RequestSettlement(context.Context, uint64) (*service.Pending, error) {
	return nil, f.err
}
func (f failingWriter) FinalizeSettlement(context.Context, uint64) (*service.Pending, error) {
	return nil, f.err
}
func (f failingWriter) Withdraw(context.Context) (*service.Pending, error) { return nil, f.err }
func (f failingWriter) Approve(context.Context, service.ApproveInput) (*service.Pending, error) {
	return nil, f.err
}

func TestWriteErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("tx_service: bet: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("tx_service: %w", domain.ErrNoWallet), http.StatusServiceUnavailable},
		{fmt.Errorf("tx_service: %w", domain.ErrWalletBusy), http.StatusConflict},
		{fmt.Errorf("tx_service: %w", domain.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewWriteHandler(failingWriter{err: tc.err}, discardLogger())
		rec := serve(http.MethodPost, "/api/withdrawals", "/api/withdrawals", h.Withdraw, "")
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestWriteRejectsMalformedBody(t *testing.T) {
	h := NewWriteHandler(failingWriter{err: errors.New("unreachable")}, discardLogger())

	rec := serve(http.MethodPost, "/api/alphas", "/api/alphas", h.Create, `{"ticker":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(http.MethodPost, "/api/alphas/{id}/bets", "/api/alphas/1/bets", h.Bet, `{"fid":1,"extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(http.MethodPost, "/api/alphas/{id}/bets", "/api/alphas/x/bets", h.Bet, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsDegradedDependency(t *testing.T) {
	h := NewHealthHandler("serve", map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
		"chain": func(context.Context) error { return nil },
	}, discardLogger())

	rec := serve(http.MethodGet, "/api/health", "/api/health", h.HealthCheck, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["chain"])
	assert.Equal(t, "connection refused", deps["redis"])
}
