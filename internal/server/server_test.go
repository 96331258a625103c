package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinical-mdr-api/cache"
	"clinical-mdr-api/config"
	"clinical-mdr-api/domain"
	"clinical-mdr-api/internal/testdb"
	"clinical-mdr-api/metrics"
	"clinical-mdr-api/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type envelope struct {
	Code        int             `json:"code"`
	CodeType    string          `json:"code_type"`
	CodeMessage interface{}     `json:"code_message"`
	Data        json.RawMessage `json:"data"`
}

type ServerTestSuite struct {
	suite.Suite
	router *gin.Engine
	token  string
}

func (s *ServerTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	config.SetJWTSecret("test-secret")
}

func (s *ServerTestSuite) SetupTest() {
	m := metrics.NewMetrics()
	s.router = New(Deps{
		DB:      testdb.Open(s.T()),
		Metrics: m,
		Cache:   cache.New(100, time.Minute, m),
	})
	s.token = ""

	var auth models.AuthResponse
	s.request(http.MethodPost, "/api/v1/auth/register", models.RegisterRequest{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "password123",
		Role:     models.RoleAdmin,
	}, http.StatusCreated, &auth)
	s.token = auth.Token

	s.request(http.MethodPost, "/api/v1/libraries", models.CreateLibraryRequest{Name: "Sponsor", IsEditable: true}, http.StatusCreated, nil)
}

// request sends body as JSON with the suite token, asserts the status and
// decodes the envelope data into out.
func (s *ServerTestSuite) request(method, path string, body interface{}, status int, out interface{}) envelope {
	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Require().Equal(status, w.Code, w.Body.String())

	var res envelope
	if w.Code == http.StatusNoContent {
		return res
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	if out != nil {
		s.Require().NoError(json.Unmarshal(res.Data, out))
	}
	return res
}

func (s *ServerTestSuite) TestHealthAndMetrics() {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "mdr_")
}

func (s *ServerTestSuite) TestAuthFlow() {
	token := s.token
	s.token = ""
	var login models.AuthResponse
	s.request(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: "admin@example.com", Password: "password123"}, http.StatusOK, &login)
	s.NotEmpty(login.Token)
	s.Equal("admin", login.User.Username)

	res := s.request(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: "admin@example.com", Password: "nope"}, http.StatusUnauthorized, nil)
	s.Equal("unAuthorized", res.CodeType)

	s.request(http.MethodGet, "/api/v1/profile", nil, http.StatusUnauthorized, nil)

	s.token = token
	var profile models.UserProfile
	s.request(http.MethodGet, "/api/v1/profile", nil, http.StatusOK, &profile)
	s.Equal("admin@example.com", profile.Email)
	s.Equal("admin", profile.AuthorUsername)
	s.True(profile.CanManageLibraries)
}

func (s *ServerTestSuite) TestLibraryCreationRequiresAdmin() {
	var author models.AuthResponse
	s.request(http.MethodPost, "/api/v1/auth/register", models.RegisterRequest{
		Username: "author",
		Email:    "author@example.com",
		Password: "password123",
	}, http.StatusCreated, &author)
	s.Equal(models.RoleAuthor, author.User.Role)

	s.token = author.Token
	s.request(http.MethodPost, "/api/v1/libraries", models.CreateLibraryRequest{Name: "CDISC"}, http.StatusBadRequest, nil)

	var libraries []models.Library
	s.request(http.MethodGet, "/api/v1/libraries", nil, http.StatusOK, &libraries)
	s.Len(libraries, 1)
}

func (s *ServerTestSuite) TestLibraryItemLifecycle() {
	res := s.request(http.MethodPost, "/api/v1/activity-groups", `{"library_name":"Sponsor"}`, http.StatusBadRequest, nil)
	s.Equal("validationError", res.CodeType)

	var created map[string]interface{}
	s.request(http.MethodPost, "/api/v1/activity-groups", `{"library_name":"Sponsor","name":"Vital signs"}`, http.StatusCreated, &created)
	s.Equal("0.1", created["version"])
	s.Equal("Draft", created["status"])
	s.Equal("Vital signs", created["name"])
	s.Equal("admin", created["author_username"])
	uid := created["uid"].(string)

	res = s.request(http.MethodPatch, "/api/v1/activity-groups/"+uid, `{"name":"Vitals"}`, http.StatusBadRequest, nil)
	s.Equal("validationError", res.CodeType)

	var edited map[string]interface{}
	s.request(http.MethodPatch, "/api/v1/activity-groups/"+uid, `{"name":"Vitals","change_description":"shorter"}`, http.StatusOK, &edited)
	s.Equal("0.2", edited["version"])
	s.Equal("Vitals", edited["name"])

	var approved map[string]interface{}
	s.request(http.MethodPost, "/api/v1/activity-groups/"+uid+"/approvals", nil, http.StatusCreated, &approved)
	s.Equal("1.0", approved["version"])
	s.Equal("Final", approved["status"])

	res = s.request(http.MethodPost, "/api/v1/activity-groups/"+uid+"/approvals", nil, http.StatusBadRequest, nil)
	s.Equal("businessLogicError", res.CodeType)

	res = s.request(http.MethodDelete, "/api/v1/activity-groups/"+uid, nil, http.StatusBadRequest, nil)
	s.Equal("businessLogicError", res.CodeType)

	var retired map[string]interface{}
	s.request(http.MethodDelete, "/api/v1/activity-groups/"+uid+"/activations", nil, http.StatusOK, &retired)
	s.Equal("Retired", retired["status"])
	s.request(http.MethodPost, "/api/v1/activity-groups/"+uid+"/activations", nil, http.StatusOK, nil)

	var draft map[string]interface{}
	s.request(http.MethodPost, "/api/v1/activity-groups/"+uid+"/versions", `{"definition":"resting measurements"}`, http.StatusCreated, &draft)
	s.Equal("Draft", draft["status"])
	s.Equal("resting measurements", draft["definition"])

	var versions []map[string]interface{}
	s.request(http.MethodGet, "/api/v1/activity-groups/"+uid+"/versions", nil, http.StatusOK, &versions)
	s.Len(versions, 6)
	s.Equal(draft["version"], versions[0]["version"])

	var final map[string]interface{}
	s.request(http.MethodGet, "/api/v1/activity-groups/"+uid+"?status=Final", nil, http.StatusOK, &final)
	s.Equal("Vitals", final["name"])

	var page models.ItemPage
	s.request(http.MethodGet, "/api/v1/activity-groups?library_name=Sponsor", nil, http.StatusOK, &page)
	s.Equal(int64(1), page.Total)

	res = s.request(http.MethodGet, "/api/v1/activity-groups/ActivityGroup_999999", nil, http.StatusNotFound, nil)
	s.Equal("notFound", res.CodeType)
}

func (s *ServerTestSuite) TestDraftItemDelete() {
	var created map[string]interface{}
	s.request(http.MethodPost, "/api/v1/compounds", `{"library_name":"Sponsor","name":"Aspirin"}`, http.StatusCreated, &created)
	uid := created["uid"].(string)

	s.request(http.MethodDelete, "/api/v1/compounds/"+uid, nil, http.StatusNoContent, nil)
	s.request(http.MethodGet, "/api/v1/compounds/"+uid, nil, http.StatusNotFound, nil)
}

func (s *ServerTestSuite) createUnit(name string, factor int) string {
	var unit map[string]interface{}
	body := fmt.Sprintf(`{"library_name":"Sponsor","name":%q,"conversion_factor_to_master":%d}`, name, factor)
	s.request(http.MethodPost, "/api/v1/unit-definitions", body, http.StatusCreated, &unit)
	return unit["uid"].(string)
}

func (s *ServerTestSuite) TestStudyTimeline() {
	dayUID := s.createUnit("day", domain.SecondsPerDay)

	var study models.Study
	s.request(http.MethodPost, "/api/v1/studies", models.CreateStudyRequest{Number: "0001", Acronym: "HEART"}, http.StatusCreated, &study)
	base := "/api/v1/studies/" + study.UID

	var screening, treatment models.StudyEpochOutput
	s.request(http.MethodPost, base+"/study-epochs", models.StudyEpochInput{Epoch: "Screening", EpochSubtype: "Screening"}, http.StatusCreated, &screening)
	s.request(http.MethodPost, base+"/study-epochs", models.StudyEpochInput{Epoch: "Treatment", EpochSubtype: "Treatment"}, http.StatusCreated, &treatment)
	s.Equal(2, treatment.EpochOrder)

	zero, minus7 := 0, -7
	baselineInput := models.StudyVisitInput{
		StudyEpochUID:       treatment.UID,
		VisitType:           "Baseline",
		VisitClass:          string(domain.VisitClassSingle),
		VisitContactMode:    domain.ContactModeOnSite,
		TimeReference:       domain.GlobalAnchorVisitName,
		TimeValue:           &zero,
		TimeUnitUID:         dayUID,
		IsGlobalAnchorVisit: true,
		ShowVisit:           true,
	}
	var baseline models.StudyVisitOutput
	s.request(http.MethodPost, base+"/study-visits", baselineInput, http.StatusCreated, &baseline)
	s.Equal(1, baseline.VisitNumber)

	screeningInput := baselineInput
	screeningInput.StudyEpochUID = screening.UID
	screeningInput.VisitType = "Screening"
	screeningInput.TimeValue = &minus7
	screeningInput.IsGlobalAnchorVisit = false

	var preview models.StudyVisitOutput
	s.request(http.MethodPost, base+"/study-visits/preview", screeningInput, http.StatusOK, &preview)
	s.Empty(preview.UID)
	s.Equal(-7, *preview.StudyDay)

	var created models.StudyVisitOutput
	s.request(http.MethodPost, base+"/study-visits", screeningInput, http.StatusCreated, &created)

	var visits []models.StudyVisitOutput
	s.request(http.MethodGet, base+"/study-visits", nil, http.StatusOK, &visits)
	s.Require().Len(visits, 2)
	s.Equal(created.UID, visits[0].UID)
	s.Equal(2, visits[1].VisitNumber)

	var epochs []models.StudyEpochOutput
	s.request(http.MethodGet, base+"/study-epochs", nil, http.StatusOK, &epochs)
	s.Require().Len(epochs, 2)
	s.Equal(1, epochs[0].VisitCount)

	res := s.request(http.MethodDelete, base+"/study-epochs/"+treatment.UID, nil, http.StatusBadRequest, nil)
	s.Equal("businessLogicError", res.CodeType)

	var trail []models.AuditTrailEntry
	s.request(http.MethodGet, base+"/study-visits/"+baseline.UID+"/audit-trail", nil, http.StatusOK, &trail)
	s.NotEmpty(trail)

	s.request(http.MethodDelete, base+"/study-visits/"+created.UID, nil, http.StatusNoContent, nil)

	var locked models.Study
	s.request(http.MethodPost, base+"/locks", nil, http.StatusCreated, &locked)
	s.Equal(models.StudyStatusLocked, locked.Status)

	res = s.request(http.MethodPost, base+"/study-visits", screeningInput, http.StatusBadRequest, nil)
	s.Equal("businessLogicError", res.CodeType)

	s.request(http.MethodDelete, base+"/locks", nil, http.StatusOK, nil)
	s.request(http.MethodGet, "/api/v1/studies/Study_999999/study-visits", nil, http.StatusNotFound, nil)
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
