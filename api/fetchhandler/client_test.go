package fetchhandler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGateway implements interfaces.AttestationGateway for testing
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) AttestedPublicKey(ctx context.Context) (interfaces.PublicKey, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.PublicKey), args.Error(1)
}

func newProxy(t *testing.T, handler *Handler) *httptest.Server {
	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)
	proxy := httptest.NewServer(mux)
	t.Cleanup(proxy.Close)
	return proxy
}

func otherKey(t *testing.T) interfaces.PublicKey {
	privkey, err := crypto.GenerateKey()
	require.NoError(t, err)
	pubkey, err := interfaces.NewPublicKeyFromBytes(crypto.FromECDSAPub(&privkey.PublicKey))
	require.NoError(t, err)
	return pubkey
}

func TestClient_FetchAndVerify(t *testing.T) {
	up := newUpstream(t, htmlUpstream)
	signer := testSigner(t)
	proxy := newProxy(t, newTestHandler(t, signer, Options{}))

	req := &interfaces.FetchRequest{
		URL:             up.URL,
		Method:          "GET",
		Headers:         map[string]string{"Accept": "text/html"},
		ResponseHeaders: []string{"Content-Type"},
	}

	t.Run("attested key matches", func(t *testing.T) {
		gateway := &MockGateway{}
		gateway.On("AttestedPublicKey", mock.Anything).Return(signer.PublicKey(), nil)

		resp, err := NewClient(proxy.URL+"/", gateway).FetchAndVerify(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "<html>...</html>", resp.Body)
		assert.Equal(t, "text/html", resp.Headers["Content-Type"])
		gateway.AssertExpectations(t)
	})

	t.Run("attested key differs", func(t *testing.T) {
		gateway := &MockGateway{}
		gateway.On("AttestedPublicKey", mock.Anything).Return(otherKey(t), nil)

		_, err := NewClient(proxy.URL, gateway).FetchAndVerify(context.Background(), req)
		assert.ErrorIs(t, err, interfaces.ErrSignatureMismatch)
	})

	t.Run("attestation unavailable", func(t *testing.T) {
		gateway := &MockGateway{}
		gateway.On("AttestedPublicKey", mock.Anything).Return(interfaces.PublicKey{}, errors.Join(interfaces.ErrAttestation, errors.New("connection refused")))

		_, err := NewClient(proxy.URL, gateway).FetchAndVerify(context.Background(), req)
		assert.ErrorIs(t, err, interfaces.ErrAttestation)
	})

	t.Run("no gateway", func(t *testing.T) {
		client := NewClient(proxy.URL, nil)
		resp, err := client.Fetch(context.Background(), req)
		require.NoError(t, err)
		assert.ErrorIs(t, client.Verify(context.Background(), req, resp), interfaces.ErrAttestation)
	})
}

func TestClient_VerifyDetectsTampering(t *testing.T) {
	up := newUpstream(t, htmlUpstream)
	signer := testSigner(t)
	proxy := newProxy(t, newTestHandler(t, signer, Options{}))

	gateway := &MockGateway{}
	gateway.On("AttestedPublicKey", mock.Anything).Return(signer.PublicKey(), nil)
	client := NewClient(proxy.URL, gateway)

	req := &interfaces.FetchRequest{URL: up.URL, Method: "GET"}
	resp, err := client.Fetch(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, client.Verify(context.Background(), req, resp))

	tampered := *resp
	tampered.Body = "<html>forged</html>"
	assert.ErrorIs(t, client.Verify(context.Background(), req, &tampered), interfaces.ErrSignatureMismatch)

	tampered = *resp
	tampered.Status = http.StatusNotFound
	assert.ErrorIs(t, client.Verify(context.Background(), req, &tampered), interfaces.ErrSignatureMismatch)

	tampered = *resp
	tampered.Signature = "00"
	assert.ErrorIs(t, client.Verify(context.Background(), req, &tampered), interfaces.ErrMalformedSignature)
}

func TestClient_ProxyErrors(t *testing.T) {
	signer := testSigner(t)
	proxy := newProxy(t, newTestHandler(t, signer, Options{}))
	client := NewClient(proxy.URL, nil)

	_, err := client.Fetch(context.Background(), &interfaces.FetchRequest{URL: "ftp://example.com", Method: "GET"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	_, err = NewClient(closed.URL, nil).Fetch(context.Background(), &interfaces.FetchRequest{URL: "http://example.com", Method: "GET"})
	assert.Error(t, err)
}

func TestClient_SignerInfo(t *testing.T) {
	signer := testSigner(t)
	proxy := newProxy(t, newTestHandler(t, signer, Options{}))

	info, err := NewClient(proxy.URL, nil).SignerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey().String(), info.PublicKey)
	assert.Equal(t, signer.Address().Hex(), info.Address)
}
