// Package backends holds the external service clients: the ServiceNow table
// API, the Qdrant knowledge index, the Tavily web search and the Redis user
// directory. Each implements the matching contract from the services package.
package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gridassist/server/internal/core/errx"
	"github.com/gridassist/server/internal/support/services"
	logx "github.com/gridassist/server/pkg/logger"
)

// ServiceNowConfig is sourced from the environment.
type ServiceNowConfig struct {
	Instance string `envconfig:"SERVICENOW_INSTANCE"`
	User     string `envconfig:"SERVICENOW_USER" default:"admin"`
	Password string `envconfig:"SERVICENOW_PASSWORD"`
}

// impactMapping translates a priority word into the ServiceNow impact and
// urgency codes.
var impactMapping = map[string][2]string{
	"low":      {"3", "2"},
	"medium":   {"2", "2"},
	"high":     {"1", "1"},
	"critical": {"1", "1"},
}

// ServiceNowClient talks to the ServiceNow Table API over REST with basic
// auth. It implements services.TicketStore.
type ServiceNowClient struct {
	baseURL string
	user    string
	pass    string
	http    *http.Client
}

func NewServiceNowClient(cfg ServiceNowConfig) (*ServiceNowClient, error) {
	if cfg.Instance == "" {
		return nil, fmt.Errorf("servicenow instance is empty")
	}
	instance := strings.TrimPrefix(cfg.Instance, "https://")
	instance = strings.TrimSuffix(instance, ".service-now.com")
	return &ServiceNowClient{
		baseURL: fmt.Sprintf("https://%s.service-now.com/api/now", instance),
		user:    cfg.User,
		pass:    cfg.Password,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type snRecord map[string]any

func (r snRecord) str(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case map[string]any:
		// Reference fields come back as {"value": ..., "link": ...}.
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}

func (c *ServiceNowClient) do(ctx context.Context, method, path string, query url.Values, body any) ([]snRecord, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.pass)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errx.WrapExternalService("servicenow", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errx.WrapExternalService("servicenow", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		if strings.Contains(string(raw), "Instance Hibernating") {
			return nil, errx.WrapExternalService("servicenow", fmt.Errorf("instance is hibernating"))
		}
		return nil, errx.WrapExternalService("servicenow", fmt.Errorf("status %d: %.200s", resp.StatusCode, raw))
	}

	// Table API wraps both single records and lists in a "result" envelope.
	var listEnv struct {
		Result []snRecord `json:"result"`
	}
	if err := json.Unmarshal(raw, &listEnv); err == nil && listEnv.Result != nil {
		return listEnv.Result, nil
	}
	var oneEnv struct {
		Result snRecord `json:"result"`
	}
	if err := json.Unmarshal(raw, &oneEnv); err != nil {
		return nil, errx.WrapExternalService("servicenow", fmt.Errorf("unexpected response: %w", err))
	}
	if oneEnv.Result == nil {
		return nil, nil
	}
	return []snRecord{oneEnv.Result}, nil
}

// callerSysID finds the sys_user for the email, creating one when absent.
// Failures degrade to an incident without a caller reference.
func (c *ServiceNowClient) callerSysID(ctx context.Context, email, name string) string {
	if email == "" {
		return ""
	}
	q := url.Values{}
	q.Set("sysparm_query", "email="+email)
	q.Set("sysparm_limit", "1")
	records, err := c.do(ctx, http.MethodGet, "/table/sys_user", q, nil)
	if err != nil {
		logx.Warn().Err(err).Str("email", email).Msg("sys_user lookup failed")
		return ""
	}
	if len(records) > 0 {
		return records[0].str("sys_id")
	}

	userName := strings.SplitN(email, "@", 2)[0]
	if name == "" {
		name = userName
	}
	created, err := c.do(ctx, http.MethodPost, "/table/sys_user", nil, map[string]string{
		"user_name": userName,
		"name":      name,
		"email":     email,
	})
	if err != nil {
		logx.Warn().Err(err).Str("email", email).Msg("sys_user creation failed")
		return ""
	}
	if len(created) == 0 {
		return ""
	}
	return created[0].str("sys_id")
}

func (c *ServiceNowClient) Create(ctx context.Context, in services.CreateTicketInput) (string, error) {
	mapping, ok := impactMapping[strings.ToLower(in.Priority)]
	if !ok {
		mapping = impactMapping["medium"]
	}

	category := in.Category
	if category == "" {
		category = "inquiry"
	}
	contactType := in.ContactType
	if contactType == "" {
		contactType = "Virtual Agent"
	}

	payload := map[string]string{
		"short_description": in.Subject,
		"description":       fmt.Sprintf("Created on: %s\n\n%s", time.Now().Format("2006-01-02 15:04:05"), in.Description),
		"impact":            mapping[0],
		"urgency":           mapping[1],
		"contact_type":      contactType,
		"category":          category,
	}
	if sysID := c.callerSysID(ctx, in.Email, in.CallerName); sysID != "" {
		payload["caller_id"] = sysID
	}

	records, err := c.do(ctx, http.MethodPost, "/table/incident", nil, payload)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errx.WrapExternalService("servicenow", fmt.Errorf("incident creation returned no record"))
	}
	number := records[0].str("number")
	logx.Info().Str("incident", number).Msg("servicenow incident created")
	return number, nil
}

func (c *ServiceNowClient) recordByNumber(ctx context.Context, number string) (snRecord, error) {
	q := url.Values{}
	q.Set("sysparm_query", "number="+number)
	q.Set("sysparm_limit", "1")
	records, err := c.do(ctx, http.MethodGet, "/table/incident", q, nil)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func toTicketRecord(r snRecord) services.TicketRecord {
	return services.TicketRecord{
		Number:           r.str("number"),
		ShortDescription: r.str("short_description"),
		Description:      r.str("description"),
		State:            r.str("state"),
		Priority:         r.str("priority"),
		Email:            r.str("u_email"),
		Category:         r.str("category"),
	}
}

func (c *ServiceNowClient) Get(ctx context.Context, number string) (*services.TicketRecord, error) {
	r, err := c.recordByNumber(ctx, number)
	if err != nil || r == nil {
		return nil, err
	}
	rec := toTicketRecord(r)
	return &rec, nil
}

func (c *ServiceNowClient) ListForUser(ctx context.Context, email string, f services.TicketFilters) ([]services.TicketRecord, error) {
	sysID := c.callerSysID(ctx, email, "")
	if sysID == "" {
		return nil, nil
	}

	parts := []string{"caller_id=" + sysID}
	if f.Status != "" {
		parts = append(parts, "state="+f.Status)
	}
	if f.Priority != "" {
		parts = append(parts, "priority="+f.Priority)
	}
	if f.Query != "" {
		parts = append(parts, "short_descriptionLIKE"+f.Query)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("sysparm_query", strings.Join(parts, "^")+"^ORDERBYDESCsys_created_on")
	q.Set("sysparm_limit", fmt.Sprint(limit))

	records, err := c.do(ctx, http.MethodGet, "/table/incident", q, nil)
	if err != nil {
		return nil, err
	}
	out := make([]services.TicketRecord, 0, len(records))
	for _, r := range records {
		out = append(out, toTicketRecord(r))
	}
	return out, nil
}

func (c *ServiceNowClient) update(ctx context.Context, number string, fields map[string]string) error {
	r, err := c.recordByNumber(ctx, number)
	if err != nil {
		return err
	}
	if r == nil {
		return errx.WrapExternalService("servicenow", fmt.Errorf("incident %s not found", number))
	}
	_, err = c.do(ctx, http.MethodPatch, "/table/incident/"+r.str("sys_id"), nil, fields)
	return err
}

func (c *ServiceNowClient) AddNote(ctx context.Context, number, text string, internal bool) error {
	field := "comments"
	if internal {
		field = "work_notes"
	}
	return c.update(ctx, number, map[string]string{field: text})
}

func (c *ServiceNowClient) UpdateFields(ctx context.Context, number string, fields map[string]string) error {
	return c.update(ctx, number, fields)
}

func (c *ServiceNowClient) Resolve(ctx context.Context, number, note string) error {
	// State 6 is Resolved; close_code and close_notes are mandatory there.
	return c.update(ctx, number, map[string]string{
		"state":       "6",
		"close_code":  "Solved (Permanently)",
		"close_notes": note,
	})
}

func (c *ServiceNowClient) Delete(ctx context.Context, number string) error {
	r, err := c.recordByNumber(ctx, number)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	_, err = c.do(ctx, http.MethodDelete, "/table/incident/"+r.str("sys_id"), nil, nil)
	return err
}

var _ services.TicketStore = (*ServiceNowClient)(nil)
