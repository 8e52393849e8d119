package esign

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pinksky/orderflow/internal/config"
	"github.com/pinksky/orderflow/internal/observability/tracing"
	reviewdomain "github.com/pinksky/orderflow/internal/review/domain"
	"go.uber.org/zap"
)

const peerService = "signer"

// DocusealClient talks to the DocuSeal REST API.
type DocusealClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New returns nil without an API key so review runs without a signer.
func New(cfg config.Config, log *zap.Logger) reviewdomain.Signer {
	if strings.TrimSpace(cfg.Signer.APIKey) == "" {
		log.Warn("signer api key not set, approvals cannot be sent for signing")
		return nil
	}
	return NewDocusealClient(cfg.Signer.APIKey, cfg.Signer.BaseURL, &http.Client{Timeout: cfg.Signer.Timeout}, log)
}

func NewDocusealClient(apiKey, baseURL string, httpClient *http.Client, log *zap.Logger) *DocusealClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DocusealClient{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		log:     log.Named("signer.docuseal"),
	}
}

type APIError struct {
	Status  int
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signer: status %d: %s", e.Status, e.Message)
}

type templateDocument struct {
	Name string `json:"name"`
	File string `json:"file"`
}

type createTemplateRequest struct {
	Name      string             `json:"name"`
	Documents []templateDocument `json:"documents"`
}

type templateResponse struct {
	ID        int64 `json:"id"`
	Documents []struct {
		URL string `json:"url"`
	} `json:"documents"`
}

type submitter struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type createSubmissionRequest struct {
	TemplateID int64       `json:"template_id"`
	SendEmail  bool        `json:"send_email"`
	Order      string      `json:"order"`
	Submitters []submitter `json:"submitters"`
}

type submitterResponse struct {
	ID           int64  `json:"id"`
	SubmissionID int64  `json:"submission_id"`
	Role         string `json:"role"`
	EmbedSrc     string `json:"embed_src"`
}

func (c *DocusealClient) CreateTemplate(ctx context.Context, name string, pdf []byte) (reviewdomain.SigningTemplate, error) {
	if len(pdf) == 0 {
		return reviewdomain.SigningTemplate{}, fmt.Errorf("signer: empty document")
	}
	body := createTemplateRequest{
		Name: name,
		Documents: []templateDocument{{
			Name: name,
			File: base64.StdEncoding.EncodeToString(pdf),
		}},
	}
	var out templateResponse
	if err := c.do(ctx, "create_template", http.MethodPost, "/templates/pdf", body, &out); err != nil {
		return reviewdomain.SigningTemplate{}, err
	}
	if out.ID == 0 {
		return reviewdomain.SigningTemplate{}, fmt.Errorf("signer: template response missing id")
	}
	tmpl := reviewdomain.SigningTemplate{TemplateID: strconv.FormatInt(out.ID, 10)}
	if len(out.Documents) > 0 {
		tmpl.DocumentURL = out.Documents[0].URL
	}
	return tmpl, nil
}

// CreateSubmission asks parties to sign in the given order.
func (c *DocusealClient) CreateSubmission(ctx context.Context, templateID string, parties []reviewdomain.SigningParty) (reviewdomain.Submission, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(templateID), 10, 64)
	if err != nil {
		return reviewdomain.Submission{}, fmt.Errorf("signer: invalid template id %q", templateID)
	}
	body := createSubmissionRequest{
		TemplateID: id,
		SendEmail:  true,
		Order:      "preserved",
		Submitters: make([]submitter, 0, len(parties)),
	}
	for _, p := range parties {
		body.Submitters = append(body.Submitters, submitter{Role: p.Role, Email: p.Email, Name: p.Name})
	}

	var out []submitterResponse
	if err := c.do(ctx, "create_submission", http.MethodPost, "/submissions", body, &out); err != nil {
		return reviewdomain.Submission{}, err
	}
	if len(out) == 0 {
		return reviewdomain.Submission{}, fmt.Errorf("signer: submission response has no submitters")
	}
	sub := reviewdomain.Submission{
		ID:    strconv.FormatInt(out[0].SubmissionID, 10),
		Links: make(map[string]string, len(out)),
	}
	for _, s := range out {
		if s.EmbedSrc != "" {
			sub.Links[s.Role] = s.EmbedSrc
		}
	}
	return sub, nil
}

func (c *DocusealClient) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := tracing.StartClientSpan(ctx, peerService, op)
	status := 0
	defer func() { tracing.EndClientSpan(span, status, err) }()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		c.log.Warn("signer request rejected", zap.String("op", op), zap.Int("status", resp.StatusCode))
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

var _ reviewdomain.Signer = (*DocusealClient)(nil)
