package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Cardinality controls how many matches a rule yields
type Cardinality string

const (
	CardinalitySingle Cardinality = "single"
	CardinalityList   Cardinality = "list"
)

// ExtractMode controls what part of a matched element is extracted
type ExtractMode string

const (
	ModeText     ExtractMode = "text"     // trimmed text content (default)
	ModeHTML     ExtractMode = "html"     // outer HTML of the element
	ModeAttr     ExtractMode = "attr"     // a named attribute (requires Attr)
	ModeMarkdown ExtractMode = "markdown" // element HTML converted to Markdown
)

// ExtractionRule describes one output field. Exactly one of Selector
// (CSS) or Pattern (regular expression over the page source) must be set.
type ExtractionRule struct {
	Field       string      `json:"field"`
	Selector    string      `json:"selector,omitempty"`
	Pattern     string      `json:"pattern,omitempty"`
	Mode        ExtractMode `json:"mode,omitempty"`
	Attr        string      `json:"attr,omitempty"`
	Cardinality Cardinality `json:"cardinality,omitempty"`
	Optional    bool        `json:"optional,omitempty"`
}

// StepType identifies a navigation interaction
type StepType string

const (
	StepClick       StepType = "click"
	StepWaitVisible StepType = "wait_visible"
	StepScroll      StepType = "scroll"
	StepSleep       StepType = "sleep"
	StepFill        StepType = "fill"
	StepEval        StepType = "eval"
)

// NavigationStep is one ordered interaction executed after page load.
// Each step runs under its own timeout; a zero Timeout uses the
// session manager's configured per-step default.
type NavigationStep struct {
	Type         StepType      `json:"type"`
	Selector     string        `json:"selector,omitempty"`
	Value        string        `json:"value,omitempty"`
	Milliseconds int           `json:"milliseconds,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
}

// ScrapeRequest is the input to a single scrape operation.
// It is treated as immutable once submitted.
type ScrapeRequest struct {
	URL   string           `json:"url"`
	Rules []ExtractionRule `json:"rules"`
	Steps []NavigationStep `json:"steps,omitempty"`

	// WaitSelector is the stability signal: navigation is considered
	// settled once an element matching it is present. Defaults to "body".
	WaitSelector string `json:"wait_selector,omitempty"`

	// SessionName names a saved auth session whose cookies are applied
	// before navigation.
	SessionName string `json:"session_name,omitempty"`

	// Timeout is the request-level wall clock budget (0 = server default).
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxAge enables the result cache: a cached result younger than
	// MaxAge satisfies the request without touching the browser.
	MaxAge time.Duration `json:"max_age,omitempty"`
}

// Cookie is a browser cookie applied to a session before navigation
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
}

// Field holds one extracted value. Exactly one of Single or List is
// non-nil; both nil means the field resolved to absent.
type Field struct {
	Name   string
	Single *string
	List   []string
}

// Absent reports whether the field matched nothing.
func (f Field) Absent() bool {
	return f.Single == nil && f.List == nil
}

// Fields is the ordered extraction output. Order follows rule order.
type Fields []Field

// Get returns the field with the given name.
func (fs Fields) Get(name string) (Field, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// MarshalJSON renders Fields as a JSON object preserving rule order.
// Single values serialize as strings, list values as arrays, absent as null.
func (fs Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		switch {
		case f.Single != nil:
			v, err := json.Marshal(*f.Single)
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		case f.List != nil:
			v, err := json.Marshal(f.List)
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		default:
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores Fields from the object form, keeping the
// key order of the document.
func (fs *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}

	out := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("fields: unexpected key token %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		f := Field{Name: name}
		value := bytes.TrimSpace(raw)
		switch {
		case bytes.Equal(value, []byte("null")):
		case len(value) > 0 && value[0] == '[':
			if err := json.Unmarshal(value, &f.List); err != nil {
				return err
			}
		default:
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return err
			}
			f.Single = &s
		}
		out = append(out, f)
	}
	*fs = out
	return nil
}

// ScrapeResult is the single terminal success outcome of a request
type ScrapeResult struct {
	Fields    Fields    `json:"fields"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Attempts  int       `json:"attempts"`
	SessionID string    `json:"session_id"`
	FinalURL  string    `json:"final_url,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ErrorDetail is the wire form of a classified failure
type ErrorDetail struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Transient bool           `json:"transient"`
	Details   map[string]any `json:"details,omitempty"`
}

// ScrapeResponse is the transport-level envelope shared by the HTTP
// server and the one-shot function binding.
type ScrapeResponse struct {
	Success     bool          `json:"success"`
	Result      *ScrapeResult `json:"result,omitempty"`
	Error       *ErrorDetail  `json:"error,omitempty"`
	CacheStatus string        `json:"cache_status,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	ElapsedMs   int64         `json:"elapsed_ms"`
}
