package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ex-augmenter/pkg/augmenter"
)

type renderedBlock struct {
	Type string `json:"type"`
	Text *struct {
		Type  string `json:"type"`
		Text  string `json:"text"`
		Emoji bool   `json:"emoji"`
	} `json:"text"`
	Fields []struct {
		Text string `json:"text"`
	} `json:"fields"`
	Elements []struct {
		Text string `json:"text"`
	} `json:"elements"`
}

func renderBlocks(t *testing.T, contact augmenter.Contact) []renderedBlock {
	t.Helper()

	message := BuildMessage(contact)
	raw, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal message failed: %v", err)
	}
	var payload struct {
		Blocks []renderedBlock `json:"blocks"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal message failed: %v", err)
	}

	return payload.Blocks
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		contact   augmenter.Contact
		wantTypes []string
		wantTexts []string
	}{
		{
			name: "general contact",
			contact: augmenter.Contact{
				Firstname:      "Jane",
				Lastname:       "Smith",
				Email:          "jane@example.com",
				Source:         "website",
				AdditionalInfo: "I have a question about the community",
			},
			wantTypes: []string{"header", "section", "section", "divider", "context", "section"},
			wantTexts: []string{
				"📬 New Contact Submission",
				"*Name:*\nJane Smith",
				"*Email:*\njane@example.com",
				"*Source:* website",
				"*Sponsorship Inquiry:* No",
				"*Additional Info:*\nI have a question about the community",
			},
		},
		{
			name: "sponsorship inquiry",
			contact: augmenter.Contact{
				Firstname:          "John",
				Lastname:           "Doe",
				Email:              "john@acme.com",
				CompanyName:        "Acme Corp",
				SponsorshipInquiry: true,
				BudgetRange:        "from-5000-to-10000",
			},
			wantTypes: []string{"header", "section", "section", "divider", "context", "context"},
			wantTexts: []string{
				"🤝 Sponsorship Inquiry",
				"*Company:*\nAcme Corp",
				"*Website:*\nN/A",
				"*Sponsorship Inquiry:* Yes",
				"*Budget Range:* from  5000 to  10000",
			},
		},
		{
			name:      "name trimmed when lastname missing",
			contact:   augmenter.Contact{Firstname: "Test", Email: "test@test.com"},
			wantTypes: []string{"header", "section", "divider", "context"},
			wantTexts: []string{"*Name:*\nTest"},
		},
		{
			name:      "budget ignored without sponsorship",
			contact:   augmenter.Contact{Email: "a@b.c", BudgetRange: "above-10000"},
			wantTypes: []string{"header", "section", "divider", "context"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			blocks := renderBlocks(t, testCase.contact)
			types := make([]string, 0, len(blocks))
			texts := make(map[string]struct{})
			for _, block := range blocks {
				types = append(types, block.Type)
				if block.Text != nil {
					texts[block.Text.Text] = struct{}{}
				}
				for _, field := range block.Fields {
					texts[field.Text] = struct{}{}
				}
				for _, element := range block.Elements {
					texts[element.Text] = struct{}{}
				}
			}

			if strings.Join(types, ",") != strings.Join(testCase.wantTypes, ",") {
				t.Fatalf("block types = %v, want %v", types, testCase.wantTypes)
			}
			for _, want := range testCase.wantTexts {
				if _, ok := texts[want]; !ok {
					t.Fatalf("missing block text %q in %v", want, texts)
				}
			}
			if blocks[0].Text == nil || blocks[0].Text.Type != "plain_text" || !blocks[0].Text.Emoji {
				t.Fatalf("header text = %+v, want plain_text with emoji", blocks[0].Text)
			}
		})
	}
}

func TestFormatBudgetRange(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"from-5000-to-10000": "from  5000 to  10000",
		"above-20000":        "above  20000",
		"1000":               "1000",
	}
	for input, want := range tests {
		if got := FormatBudgetRange(input); got != want {
			t.Fatalf("FormatBudgetRange(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNotifyContact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		contact     *augmenter.Contact
		noURL       bool
		wantErr     bool
		wantPosts   int
		wantLogPart string
	}{
		{name: "success", status: http.StatusOK, contact: &augmenter.Contact{Email: "a@b.c"}, wantPosts: 1, wantLogPart: "notification sent"},
		{name: "non-2xx", status: http.StatusInternalServerError, contact: &augmenter.Contact{Email: "a@b.c"}, wantErr: true, wantPosts: 1},
		{name: "nil contact", status: http.StatusOK, wantLogPart: "no contact data"},
		{name: "missing webhook", status: http.StatusOK, noURL: true, contact: &augmenter.Contact{Email: "a@b.c"}, wantLogPart: "not configured"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var (
				mu    sync.Mutex
				posts int
			)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				mu.Lock()
				posts++
				mu.Unlock()
				if !json.Valid(body) || r.Method != http.MethodPost {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				w.WriteHeader(testCase.status)
			}))
			defer server.Close()

			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))
			webhookURL := server.URL
			if testCase.noURL {
				webhookURL = ""
			}
			notifier := New(webhookURL, WithHTTPClient(server.Client()), WithLogger(logger))

			err := notifier.NotifyContact(context.Background(), testCase.contact)
			if (err != nil) != testCase.wantErr {
				t.Fatalf("NotifyContact error = %v, wantErr %v", err, testCase.wantErr)
			}

			mu.Lock()
			gotPosts := posts
			mu.Unlock()
			if gotPosts != testCase.wantPosts {
				t.Fatalf("posts = %d, want %d", gotPosts, testCase.wantPosts)
			}
			if testCase.wantLogPart != "" && !strings.Contains(logs.String(), testCase.wantLogPart) {
				t.Fatalf("logs = %q, want substring %q", logs.String(), testCase.wantLogPart)
			}
		})
	}
}
