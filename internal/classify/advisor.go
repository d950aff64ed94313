package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/postprober/healthwatch/internal/domain"
)

// HTTPAdvisor posts a health record to a remote scoring endpoint and expects
// Advice back as JSON. Any transport or decode problem is an error the
// Classifier silently absorbs.
type HTTPAdvisor struct {
	URL    string
	Client *http.Client
}

func NewHTTPAdvisor(url string) *HTTPAdvisor {
	if url == "" {
		return nil
	}
	return &HTTPAdvisor{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type advisorPayload struct {
	Record   domain.HealthRecord `json:"record"`
	Baseline domain.Baseline     `json:"baseline"`
}

func (a *HTTPAdvisor) Advise(ctx context.Context, rec domain.HealthRecord, baseline domain.Baseline) (Advice, error) {
	if a == nil || a.URL == "" {
		return Advice{}, errors.New("advisor disabled")
	}
	body, _ := json.Marshal(advisorPayload{Record: rec, Baseline: baseline})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return Advice{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return Advice{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Advice{}, fmt.Errorf("advisor status %d", resp.StatusCode)
	}

	var advice Advice
	dec := json.NewDecoder(resp.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&advice); err != nil {
		return Advice{}, fmt.Errorf("decode advice: %w", err)
	}
	return advice, nil
}
