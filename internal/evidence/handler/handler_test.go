package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ownergraph/internal/evidence/handler/mocks"
	"ownergraph/internal/evidence/models"
	"ownergraph/internal/evidence/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/requestcontext"
	"ownergraph/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/evidence-mocks.go -package=mocks Service
type EvidenceHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
}

func TestEvidenceHandlerSuite(t *testing.T) {
	suite.Run(t, new(EvidenceHandlerSuite))
}

func (s *EvidenceHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *EvidenceHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), method, path, body))
}

func (s *EvidenceHandlerSuite) TestAttach() {
	uboID := id.NewUBOID()

	s.Run("created", func() {
		s.service.EXPECT().Attach(gomock.Any(), service.AttachCommand{
			UBOID:       uboID,
			Role:        models.RoleChainLink,
			DocumentRef: "doc://register-extract",
		}).Return(&models.Evidence{ID: id.NewEvidenceID(), UBOID: uboID, Role: models.RoleChainLink, Status: models.StatusPending}, nil)

		rec := s.do(http.MethodPost, "/ubos/"+uboID.String()+"/evidence", map[string]any{
			"role":         "chain_link",
			"document_ref": "doc://register-extract",
		})
		s.Require().Equal(http.StatusCreated, rec.Code)

		var item models.Evidence
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&item))
		s.Equal(models.StatusPending, item.Status)
	})

	s.Run("unknown role", func() {
		rec := s.do(http.MethodPost, "/ubos/"+uboID.String()+"/evidence", map[string]any{"role": "selfie"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown candidate", func() {
		s.service.EXPECT().Attach(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "ubo candidate not found"))
		rec := s.do(http.MethodPost, "/ubos/"+uboID.String()+"/evidence", map[string]any{"role": "IDENTITY_PROOF"})
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *EvidenceHandlerSuite) TestProvability() {
	uboID := id.NewUBOID()
	s.service.EXPECT().CanProve(gomock.Any(), uboID).Return(&models.Provability{
		UBOID:            uboID,
		HasIdentityProof: true,
		Missing:          []models.Role{models.RoleOwnershipProof},
		VerifiedCount:    1,
	}, nil)

	rec := s.do(http.MethodGet, "/ubos/"+uboID.String()+"/provability", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var p models.Provability
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&p))
	s.False(p.CanProve)
	s.Equal([]models.Role{models.RoleOwnershipProof}, p.Missing)
}

func (s *EvidenceHandlerSuite) TestTransitions() {
	evidenceID := id.NewEvidenceID()

	s.Run("verify runs as the authenticated actor", func() {
		s.service.EXPECT().Verify(gomock.Any(), evidenceID).DoAndReturn(
			func(ctx context.Context, _ id.EvidenceID) (*models.Evidence, error) {
				s.Equal(id.ActorID("analyst-7"), requestcontext.ActorID(ctx))
				return &models.Evidence{ID: evidenceID, Status: models.StatusVerified}, nil
			})
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/evidence/"+evidenceID.String()+"/verify", nil)
		rec := testutil.DoRequest(s.router, testutil.WithActor(req, "analyst-7"))
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("reject requires a reason", func() {
		rec := s.do(http.MethodPost, "/evidence/"+evidenceID.String()+"/reject", map[string]any{"reason": ""})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("reject", func() {
		s.service.EXPECT().Reject(gomock.Any(), evidenceID, "expired passport").
			Return(&models.Evidence{ID: evidenceID, Status: models.StatusRejected}, nil)
		rec := s.do(http.MethodPost, "/evidence/"+evidenceID.String()+"/reject", map[string]any{"reason": " expired passport "})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("illegal move is a conflict", func() {
		s.service.EXPECT().Resubmit(gomock.Any(), evidenceID).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "evidence cannot move from PENDING to PENDING"))
		rec := s.do(http.MethodPost, "/evidence/"+evidenceID.String()+"/resubmit", nil)
		testutil.RequireStatusAndError(s.T(), rec, http.StatusConflict, "invalid_state")
	})
}

func (s *EvidenceHandlerSuite) TestList() {
	uboID := id.NewUBOID()
	s.service.EXPECT().List(gomock.Any(), uboID).Return([]*models.Evidence{{ID: id.NewEvidenceID(), UBOID: uboID}}, nil)

	rec := s.do(http.MethodGet, "/ubos/"+uboID.String()+"/evidence", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp EvidenceListResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Len(resp.Evidence, 1)
}
