// Package stubbackend serves the diagnosis backend API from memory. It backs
// the package tests and `selfdiag stub`.
package stubbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mrsinham/selfdiag/internal/backend"
	"github.com/mrsinham/selfdiag/internal/diagnosis"
	"github.com/mrsinham/selfdiag/internal/logger"
)

// Endpoint names a stubbed route, for fault injection.
type Endpoint string

const (
	EndpointCreatePatient  Endpoint = "create_patient"
	EndpointCreateVisit    Endpoint = "create_visit"
	EndpointUploadImage    Endpoint = "upload_image"
	EndpointComplete       Endpoint = "complete_self_diagnosis"
	EndpointAnalysisResult Endpoint = "analysis_result"
)

const defaultMaxUploadSize = 10 << 20

// StoredImage is an uploaded image kept by the stub.
type StoredImage struct {
	ID          string
	VisitID     int64
	Filename    string
	ContentType string
	ImageType   string
	Description string
	Data        []byte
}

type fault struct {
	status  int
	body    backend.ErrorResponse
	dropped bool
}

// Server is an in-memory diagnosis backend.
type Server struct {
	log           *logger.Logger
	maxUploadSize int64
	analysis      map[string]any
	finalAnalysis map[string]any
	deferAnalysis bool

	mu          sync.Mutex
	nextPatient int64
	nextVisit   int64
	patients    map[int64]backend.PatientPayload
	visits      map[int64]backend.VisitPayload
	images      map[int64][]StoredImage
	results     map[int64]map[string]any
	faults      map[Endpoint][]fault
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithAnalysis sets the result returned by image uploads.
func WithAnalysis(result map[string]any) Option {
	return func(s *Server) { s.analysis = result }
}

// WithFinalAnalysis sets the result returned by complete-self-diagnosis.
// nil makes the endpoint answer with status "submitted" only.
func WithFinalAnalysis(result map[string]any) Option {
	return func(s *Server) { s.finalAnalysis = result }
}

// WithDeferredAnalysis makes analysis-result report "pending" until the
// visit has been completed.
func WithDeferredAnalysis() Option {
	return func(s *Server) { s.deferAnalysis = true }
}

// WithMaxUploadSize caps multipart uploads.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) { s.maxUploadSize = n }
}

// New returns a stub with the default canned analyses.
func New(opts ...Option) *Server {
	s := &Server{
		log:           logger.Discard(),
		maxUploadSize: defaultMaxUploadSize,
		analysis:      DefaultAnalysis(),
		finalAnalysis: DefaultFinalAnalysis(),
		patients:      make(map[int64]backend.PatientPayload),
		visits:        make(map[int64]backend.VisitPayload),
		images:        make(map[int64][]StoredImage),
		results:       make(map[int64]map[string]any),
		faults:        make(map[Endpoint][]fault),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultAnalysis is the canned tongue analysis.
func DefaultAnalysis() map[string]any {
	return map[string]any{
		"舌象分析": "舌淡红，苔薄白",
		"最终结果": map[string]any{
			"证型":   "风寒束表",
			"处方组成": "桂枝汤：桂枝9g，白芍9g，生姜9g，大枣3枚，炙甘草6g",
		},
	}
}

// DefaultFinalAnalysis is the canned result of complete-self-diagnosis.
func DefaultFinalAnalysis() map[string]any {
	return map[string]any{
		"最终结果": map[string]any{
			"证型":   "风寒束表",
			"处方组成": "荆防败毒散加减：荆芥10g，防风10g，羌活6g，独活6g，柴胡6g，前胡6g",
		},
	}
}

// Handler returns the chi router serving the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post(backend.PathPatients, s.handleCreatePatient)
	r.Post(backend.PathVisits, s.handleCreateVisit)
	r.Route("/api/self-diagnosis", func(r chi.Router) {
		r.Post("/upload-tongue-image/{visitID}", s.handleUpload)
		r.Post("/complete-self-diagnosis/{visitID}", s.handleComplete)
		r.Get("/analysis-result/{visitID}", s.handleAnalysisResult)
	})
	return r
}

// FailNext makes the next call to endpoint answer with status and an error
// body carrying message. An empty message sends only the error field.
func (s *Server) FailNext(endpoint Endpoint, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[endpoint] = append(s.faults[endpoint], fault{
		status: status,
		body:   backend.ErrorResponse{Error: http.StatusText(status), Message: message},
	})
}

// DropNext makes the next call to endpoint close the connection without a
// response.
func (s *Server) DropNext(endpoint Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[endpoint] = append(s.faults[endpoint], fault{dropped: true})
}

// Patients returns the stored patients ordered by id.
func (s *Server) Patients() []backend.PatientPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.PatientPayload, 0, len(s.patients))
	for id := int64(1); id <= s.nextPatient; id++ {
		if p, ok := s.patients[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Visits returns the stored visits ordered by id.
func (s *Server) Visits() []backend.VisitPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.VisitPayload, 0, len(s.visits))
	for id := int64(1); id <= s.nextVisit; id++ {
		if v, ok := s.visits[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Images returns the images uploaded for visitID.
func (s *Server) Images(visitID int64) []StoredImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredImage(nil), s.images[visitID]...)
}

// injectFault answers with a queued fault for endpoint, if any.
func (s *Server) injectFault(w http.ResponseWriter, endpoint Endpoint) bool {
	s.mu.Lock()
	queue := s.faults[endpoint]
	if len(queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f := queue[0]
	s.faults[endpoint] = queue[1:]
	s.mu.Unlock()

	if f.dropped {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return true
			}
		}
		panic(http.ErrAbortHandler)
	}
	writeJSON(w, f.status, f.body)
	return true
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	if s.injectFault(w, EndpointCreatePatient) {
		return
	}

	var p backend.PatientPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient payload")
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		writeError(w, http.StatusBadRequest, "患者姓名不能为空")
		return
	}

	s.mu.Lock()
	s.nextPatient++
	p.ID = s.nextPatient
	if p.IDCard == "" {
		p.IDCard = "SD" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
	}
	s.patients[p.ID] = p
	s.mu.Unlock()

	s.log.Info("stub_patient_created", "patient_id", p.ID)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateVisit(w http.ResponseWriter, r *http.Request) {
	if s.injectFault(w, EndpointCreateVisit) {
		return
	}

	var v backend.VisitPayload
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid visit payload")
		return
	}
	if v.Patient == nil {
		writeError(w, http.StatusBadRequest, "就诊记录必须关联患者")
		return
	}

	s.mu.Lock()
	if _, ok := s.patients[v.Patient.ID]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, fmt.Sprintf("患者不存在: %d", v.Patient.ID))
		return
	}
	s.nextVisit++
	v.ID = s.nextVisit
	s.visits[v.ID] = v
	s.mu.Unlock()

	s.log.Info("stub_visit_created", "visit_id", v.ID, "patient_id", v.Patient.ID)
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.injectFault(w, EndpointUploadImage) {
		return
	}

	visitID, ok := s.visitFromPath(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "图片上传失败: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "请选择要上传的图片")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "图片文件为空")
		return
	}

	imageType := r.FormValue("imageType")
	if imageType != diagnosis.ImageTypeTongue {
		writeError(w, http.StatusBadRequest, "仅支持舌象图片")
		return
	}

	img := StoredImage{
		ID:          uuid.NewString(),
		VisitID:     visitID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		ImageType:   imageType,
		Description: r.FormValue("description"),
		Data:        data,
	}

	s.mu.Lock()
	s.images[visitID] = append(s.images[visitID], img)
	if !s.deferAnalysis {
		s.results[visitID] = s.analysis
	}
	s.mu.Unlock()

	s.log.Info("stub_image_uploaded", "visit_id", visitID, "image_id", img.ID, "bytes", len(data))
	writeJSON(w, http.StatusOK, backend.UploadResponse{
		Status:           "success",
		Message:          "图片上传并分析成功",
		ImageID:          img.ID,
		AIAnalysisResult: s.analysis,
	})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if s.injectFault(w, EndpointComplete) {
		return
	}

	visitID, ok := s.visitFromPath(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.finalAnalysis != nil {
		s.results[visitID] = s.finalAnalysis
	} else if _, done := s.results[visitID]; !done {
		s.results[visitID] = s.analysis
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, backend.CompleteResponse{
		Status:  backend.AnalysisStatusSubmitted,
		Message: "自诊数据已提交，AI分析完成",
		VisitID: visitID,
		Result:  s.finalAnalysis,
	})
}

func (s *Server) handleAnalysisResult(w http.ResponseWriter, r *http.Request) {
	if s.injectFault(w, EndpointAnalysisResult) {
		return
	}

	visitID, ok := s.visitFromPath(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	result, done := s.results[visitID]
	s.mu.Unlock()

	if !done {
		writeJSON(w, http.StatusOK, backend.AnalysisResult{
			Status:  backend.AnalysisStatusPending,
			Message: "AI分析尚未完成",
		})
		return
	}
	writeJSON(w, http.StatusOK, backend.AnalysisResult{
		Status: backend.AnalysisStatusSuccess,
		Result: result,
	})
}

// visitFromPath parses the visit id URL parameter and checks the visit
// exists.
func (s *Server) visitFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "visitID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid visit id")
		return 0, false
	}

	s.mu.Lock()
	_, ok := s.visits[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("就诊记录不存在: %d", id))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, backend.ErrorResponse{Error: http.StatusText(status), Message: message})
}
