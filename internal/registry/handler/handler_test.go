package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"aidchain/internal/registry/handler/mocks"
	"aidchain/internal/registry/models"
	dErrors "aidchain/pkg/domain-errors"
	"aidchain/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/registry-mocks.go -package=mocks Service

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	d1        = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

type RegistryHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestRegistryHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistryHandlerSuite))
}

// fakeAuth authenticates the caller named in the X-Test-Caller header.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("X-Test-Caller")
		if hdr == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := requestcontext.WithCaller(r.Context(), common.HexToAddress(hdr))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *RegistryHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), fakeAuth)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *RegistryHandlerSuite) do(method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != nil {
		req.Header.Set("X-Test-Caller", caller.Hex())
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RegistryHandlerSuite) TestRegisterParticipant() {
	s.Run("success", func() {
		registeredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		s.service.EXPECT().
			RegisterParticipant(gomock.Any(), authority, d1, models.RoleGroundHandler, "FIJI").
			Return(&models.Participant{Address: d1, Role: models.RoleGroundHandler, Location: "FIJI", RegisteredAt: registeredAt}, nil)

		w := s.do(http.MethodPost, "/participants", &authority, map[string]string{
			"address": d1.Hex(), "role": "Ground_Relief", "location": "FIJI",
		})

		assert.Equal(s.T(), http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(s.T(), "ground_handler", resp["role"])
		assert.Equal(s.T(), models.DisplayID(d1), resp["display_id"])
		assert.Equal(s.T(), "2026-03-01T12:00:00Z", resp["registered_at"])
	})

	s.Run("unauthenticated", func() {
		w := s.do(http.MethodPost, "/participants", nil, map[string]string{"address": d1.Hex()})
		assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
	})

	s.Run("malformed address", func() {
		w := s.do(http.MethodPost, "/participants", &authority, map[string]string{
			"address": "not-an-address", "role": "recipient", "location": "FIJI",
		})
		assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	})

	s.Run("unknown field", func() {
		w := s.do(http.MethodPost, "/participants", &authority, map[string]string{"bogus": "x"})
		assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	})

	s.Run("service rejects caller", func() {
		s.service.EXPECT().
			RegisterParticipant(gomock.Any(), d1, d1, models.RoleRecipient, "FIJI").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "only the authority can register participants"))

		w := s.do(http.MethodPost, "/participants", &d1, map[string]string{
			"address": d1.Hex(), "role": "recipient", "location": "FIJI",
		})
		assert.Equal(s.T(), http.StatusForbidden, w.Code)
		assert.Contains(s.T(), w.Body.String(), "unauthorized")
	})

	s.Run("internal error hides description", func() {
		s.service.EXPECT().
			RegisterParticipant(gomock.Any(), authority, d1, models.RoleRecipient, "FIJI").
			Return(nil, dErrors.New(dErrors.CodeInternal, "db exploded"))

		w := s.do(http.MethodPost, "/participants", &authority, map[string]string{
			"address": d1.Hex(), "role": "recipient", "location": "FIJI",
		})
		assert.Equal(s.T(), http.StatusInternalServerError, w.Code)
		assert.NotContains(s.T(), w.Body.String(), "db exploded")
	})
}

func (s *RegistryHandlerSuite) TestTransferAuthority() {
	s.service.EXPECT().TransferAuthority(gomock.Any(), authority, d1).Return(nil)

	w := s.do(http.MethodPost, "/authority", &authority, map[string]string{"address": d1.Hex()})

	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Contains(s.T(), w.Body.String(), d1.Hex())
}

func (s *RegistryHandlerSuite) TestGetAuthority() {
	s.service.EXPECT().Authority(gomock.Any()).Return(authority, nil)

	w := s.do(http.MethodGet, "/authority", nil, nil)

	assert.Equal(s.T(), http.StatusOK, w.Code)
	assert.Contains(s.T(), w.Body.String(), authority.Hex())
}

func (s *RegistryHandlerSuite) TestGetParticipant() {
	s.Run("unknown address reports role none", func() {
		s.service.EXPECT().Describe(gomock.Any(), d1).
			Return(&models.Participant{Address: d1, Role: models.RoleNone}, nil)

		w := s.do(http.MethodGet, "/participants/"+d1.Hex(), nil, nil)

		assert.Equal(s.T(), http.StatusOK, w.Code)
		var resp map[string]any
		require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(s.T(), "none", resp["role"])
		assert.Equal(s.T(), "", resp["location"])
		assert.NotContains(s.T(), resp, "registered_at")
	})

	s.Run("zero address is rejected", func() {
		w := s.do(http.MethodGet, "/participants/0x0000000000000000000000000000000000000000", nil, nil)
		assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	})
}

func (s *RegistryHandlerSuite) TestListParticipants() {
	s.service.EXPECT().ListByRole(gomock.Any(), models.RoleTransporter).Return([]common.Address{d1}, nil)

	w := s.do(http.MethodGet, "/participants?role=transporter", nil, nil)

	assert.Equal(s.T(), http.StatusOK, w.Code)
	var resp listResponse
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), []string{d1.Hex()}, resp.Addresses)

	w = s.do(http.MethodGet, "/participants?role=none", nil, nil)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *RegistryHandlerSuite) TestMissingCallerIsInternal() {
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	req := httptest.NewRequest(http.MethodPost, "/participants", bytes.NewReader([]byte(`{}`))).
		WithContext(context.Background())
	w := httptest.NewRecorder()
	h.handleRegisterParticipant(w, req)
	assert.Equal(s.T(), http.StatusInternalServerError, w.Code)
}
