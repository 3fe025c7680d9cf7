package export

import (
	"strings"
	"testing"
	"time"
)

func TestBodyToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty body",
			input:    "",
			expected: "",
		},
		{
			name:     "single paragraph",
			input:    "Went for a walk today.",
			expected: "<p>Went for a walk today.</p>",
		},
		{
			name:     "two paragraphs",
			input:    "First thought.\n\nSecond thought.",
			expected: "<p>First thought.</p>\n<p>Second thought.</p>",
		},
		{
			name:     "line break inside paragraph",
			input:    "Line one\nline two",
			expected: "<p>Line one<br>line two</p>",
		},
		{
			name:     "html is escaped",
			input:    "I <3 this & that",
			expected: "<p>I &lt;3 this &amp; that</p>",
		},
		{
			name:     "windows line endings",
			input:    "One.\r\n\r\nTwo.",
			expected: "<p>One.</p>\n<p>Two.</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := strings.TrimSpace(string(bodyToHTML(tt.input)))
			if result != strings.TrimSpace(tt.expected) {
				t.Errorf("bodyToHTML(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"journal-2025-06-01-2025-06-30", "journal-2025-06-01-2025-06-30"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},       // Spaces encoded as %20, not +
		{"test+sign", "test%2Bsign"},           // + signs are encoded
		{"special<>", "special%3C%3E"},         // Special chars encoded
		{"normal-text.txt", "normal-text.txt"}, // Unreserved chars pass through
		{"", ""},                               // Empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderJournalHTML(t *testing.T) {
	data := TemplateData{
		OwnerName: "Avery",
		From:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Entries: []TemplateEntry{
			{
				Date:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
				Title:     "Rough morning",
				Mood:      "low",
				MoodScore: 3,
				Tags:      []string{"sleep", "anxiety"},
				BodyHTML:  bodyToHTML("Could not get out of bed.\n\nWalked anyway."),
			},
		},
	}

	html, err := RenderJournalHTML(data)
	if err != nil {
		t.Fatalf("RenderJournalHTML() error = %v", err)
	}

	if !strings.Contains(html, "Avery") {
		t.Error("HTML missing owner name")
	}
	if !strings.Contains(html, "Rough morning") {
		t.Error("HTML missing entry title")
	}
	if !strings.Contains(html, "low") {
		t.Error("HTML missing mood")
	}
	if !strings.Contains(html, "sleep") {
		t.Error("HTML missing tags")
	}

	// Body HTML must be rendered raw, not escaped.
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("body content was escaped, should be raw HTML")
	}
	if !strings.Contains(html, "<p>Could not get out of bed.</p>") {
		t.Error("HTML should contain unescaped body paragraphs")
	}
}
