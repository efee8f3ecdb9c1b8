package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"

	"ownergraph/internal/snapshot/handler/mocks"
	"ownergraph/internal/snapshot/models"
	"ownergraph/internal/snapshot/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/snapshot-mocks.go -package=mocks Service
type SnapshotHandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *mocks.MockService
}

func TestSnapshotHandlerSuite(t *testing.T) {
	suite.Run(t, new(SnapshotHandlerSuite))
}

func (s *SnapshotHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *SnapshotHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *SnapshotHandlerSuite) TestCapture() {
	subject := id.NewEntityID()

	s.Run("manual by default", func() {
		s.service.EXPECT().CaptureWithBackoff(gomock.Any(), service.CaptureCommand{
			SubjectID: subject,
			Reason:    "annual review",
			Trigger:   models.TriggerManual,
		}, service.DefaultRetryPolicy).Return(&models.Snapshot{ID: id.NewSnapshotID(), SubjectID: subject, Trigger: models.TriggerManual}, nil)

		rec := s.do(http.MethodPost, "/subjects/"+subject.String()+"/snapshots", map[string]any{"reason": " annual review "})
		s.Equal(http.StatusCreated, rec.Code)
	})

	s.Run("reason is required", func() {
		rec := s.do(http.MethodPost, "/subjects/"+subject.String()+"/snapshots", map[string]any{"reason": ""})
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("unknown trigger", func() {
		rec := s.do(http.MethodPost, "/subjects/"+subject.String()+"/snapshots", map[string]any{"reason": "x", "trigger": "nightly"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("inconsistent read is unavailable", func() {
		s.service.EXPECT().CaptureWithBackoff(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, models.InconsistentRead(subject, 3))

		rec := s.do(http.MethodPost, "/subjects/"+subject.String()+"/snapshots", map[string]any{"reason": "x"})
		s.Equal(http.StatusServiceUnavailable, rec.Code)
	})
}

func (s *SnapshotHandlerSuite) TestListAndGet() {
	subject := id.NewEntityID()
	snapID := id.NewSnapshotID()

	s.Run("list", func() {
		s.service.EXPECT().List(gomock.Any(), subject).Return([]models.Summary{{ID: snapID, SubjectID: subject}}, nil)

		rec := s.do(http.MethodGet, "/subjects/"+subject.String()+"/snapshots", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp SnapshotListResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Require().Len(resp.Snapshots, 1)
		s.Equal(snapID, resp.Snapshots[0].ID)
	})

	s.Run("get", func() {
		s.service.EXPECT().Get(gomock.Any(), snapID).Return(&models.Snapshot{ID: snapID, SubjectID: subject}, nil)

		rec := s.do(http.MethodGet, "/snapshots/"+snapID.String(), nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("not found", func() {
		s.service.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "snapshot not found"))

		rec := s.do(http.MethodGet, "/snapshots/"+id.NewSnapshotID().String(), nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("malformed id", func() {
		rec := s.do(http.MethodGet, "/snapshots/not-an-id", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *SnapshotHandlerSuite) TestCompare() {
	baseline, current := id.NewSnapshotID(), id.NewSnapshotID()
	cmp := &models.Comparison{SubjectID: id.NewEntityID(), BaselineID: baseline, CurrentID: current, HasChanges: true}
	query := "?baseline=" + baseline.String() + "&current=" + current.String()

	s.Run("json", func() {
		s.service.EXPECT().Compare(gomock.Any(), baseline, current).Return(cmp, nil)

		rec := s.do(http.MethodGet, "/snapshots/compare"+query, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got models.Comparison
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&got))
		s.True(got.HasChanges)
	})

	s.Run("xlsx", func() {
		s.service.EXPECT().Compare(gomock.Any(), baseline, current).Return(cmp, nil)

		rec := s.do(http.MethodGet, "/snapshots/compare.xlsx"+query, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(xlsxContentType, rec.Header().Get("Content-Type"))
		f, err := excelize.OpenReader(rec.Body)
		s.Require().NoError(err)
		defer func() { _ = f.Close() }()
		s.Len(f.GetSheetList(), 3)
	})

	s.Run("missing ids", func() {
		rec := s.do(http.MethodGet, "/snapshots/compare?baseline="+baseline.String(), nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("different subjects", func() {
		s.service.EXPECT().Compare(gomock.Any(), baseline, current).
			Return(nil, dErrors.New(dErrors.CodeValidation, "snapshots belong to different subjects"))

		rec := s.do(http.MethodGet, "/snapshots/compare"+query, nil)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})
}
