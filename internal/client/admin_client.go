package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"festive-quiz-service/internal/domain"
)

var (
	// ErrNotLoggedIn is returned when no admin credentials are available.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrUnauthorized means the server rejected the credentials; they have
	// been cleared.
	ErrUnauthorized = errors.New("admin credentials rejected")
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// QuestionInput is the body of an add-question request.
type QuestionInput struct {
	Text           string              `json:"questionText"`
	Type           domain.QuestionType `json:"questionType"`
	Options        []string            `json:"options,omitempty"`
	CorrectAnswers []string            `json:"correctAnswers"`
	OrderIndex     *int                `json:"orderIndex,omitempty"`
	ImageURL       string              `json:"image,omitempty"`
	Category       string              `json:"category,omitempty"`
}

// AdminClient calls the admin API.
type AdminClient struct {
	baseURL string
	http    *http.Client
	auth    *AuthContext
}

func NewAdminClient(baseURL string, auth *AuthContext, httpClient *http.Client) *AdminClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		auth:    auth,
	}
}

// Login checks creds against the server and stores them only if accepted.
func (c *AdminClient) Login(ctx context.Context, creds Credentials) error {
	err := c.send(ctx, creds, http.MethodGet, "/api/admin/quizzes", nil, nil)
	if err != nil {
		return err
	}
	return c.auth.Set(creds)
}

func (c *AdminClient) Logout() error {
	return c.auth.Clear()
}

func (c *AdminClient) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	var out []domain.Quiz
	err := c.do(ctx, http.MethodGet, "/api/admin/quizzes", nil, &out)
	return out, err
}

func (c *AdminClient) CreateQuiz(ctx context.Context, title, joinCode string) (domain.Quiz, error) {
	var out domain.Quiz
	body := map[string]string{"title": title, "joinCode": joinCode}
	err := c.do(ctx, http.MethodPost, "/api/admin/quizzes", body, &out)
	return out, err
}

func (c *AdminClient) SetQuizStatus(ctx context.Context, quizID string, status domain.QuizStatus) (domain.Quiz, error) {
	var out domain.Quiz
	body := map[string]domain.QuizStatus{"status": status}
	err := c.do(ctx, http.MethodPut, "/api/admin/quizzes/"+quizID, body, &out)
	return out, err
}

func (c *AdminClient) ResetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var out domain.Quiz
	err := c.do(ctx, http.MethodPost, "/api/admin/quizzes/"+quizID+"/reset", nil, &out)
	return out, err
}

func (c *AdminClient) DeleteQuiz(ctx context.Context, quizID string) error {
	return c.do(ctx, http.MethodDelete, "/api/admin/quizzes/"+quizID, nil, nil)
}

func (c *AdminClient) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var out []domain.Question
	err := c.do(ctx, http.MethodGet, "/api/admin/quizzes/"+quizID+"/questions", nil, &out)
	return out, err
}

func (c *AdminClient) AddQuestion(ctx context.Context, quizID string, in QuestionInput) (domain.Question, error) {
	var out domain.Question
	err := c.do(ctx, http.MethodPost, "/api/admin/quizzes/"+quizID+"/questions", in, &out)
	return out, err
}

func (c *AdminClient) do(ctx context.Context, method, path string, body, out any) error {
	creds, ok, err := c.auth.Credentials()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if !ok {
		return ErrNotLoggedIn
	}
	err = c.send(ctx, creds, method, path, body, out)
	if errors.Is(err, ErrUnauthorized) {
		if clearErr := c.auth.Clear(); clearErr != nil {
			return errors.Join(err, clearErr)
		}
	}
	return err
}

func (c *AdminClient) send(ctx context.Context, creds Credentials, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", creds.Header())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Message == "" {
			payload.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
