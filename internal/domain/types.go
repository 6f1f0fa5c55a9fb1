package domain

// SessionState models the hold-to-talk lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateArmed      SessionState = "armed"
	SessionStateRecording  SessionState = "recording"
	SessionStateProcessing SessionState = "processing"
	SessionStateError      SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady               SessionStateReason = "ready"
	SessionReasonHoldArmed           SessionStateReason = "hold_armed"
	SessionReasonTapIgnored          SessionStateReason = "tap_ignored"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonTranscribing        SessionStateReason = "transcribing"
	SessionReasonRefining            SessionStateReason = "refining"
	SessionReasonTextInserted        SessionStateReason = "text_inserted"
	SessionReasonQuotaFallback       SessionStateReason = "quota_fallback"
	SessionReasonNoTranscript        SessionStateReason = "no_transcript"
	SessionReasonNotAuthenticated    SessionStateReason = "not_authenticated"
	SessionReasonConnectFailed       SessionStateReason = "connect_failed"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
	SessionReasonInsertionFailed     SessionStateReason = "insertion_failed"
)

// ErrorCode identifies faults reported to the UI.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAuth          ErrorCode = "auth"
	ErrorCodeConnect       ErrorCode = "connect"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeRefinement    ErrorCode = "refinement"
	ErrorCodeQuota         ErrorCode = "quota"
	ErrorCodeInsertion     ErrorCode = "insertion"
)

// DeliveryMode selects what happens to a finalized transcript before insertion.
type DeliveryMode string

const (
	DeliveryNormalizeThenInsert DeliveryMode = "normalize-then-insert"
	DeliveryRefineThenInsert    DeliveryMode = "refine-then-insert"
)

// Valid reports whether m is a known delivery mode.
func (m DeliveryMode) Valid() bool {
	return m == DeliveryNormalizeThenInsert || m == DeliveryRefineThenInsert
}

// TranscriptEvent is one parsed provider message. Seq is the arrival order.
type TranscriptEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
	Seq     int    `json:"seq"`
}

// TranscriptState is the accumulated transcript of one recording.
type TranscriptState struct {
	Committed string `json:"committed"`
	Pending   string `json:"pending"`
}

// Display joins committed and pending text for live feedback.
func (s TranscriptState) Display() string {
	switch {
	case s.Pending == "":
		return s.Committed
	case s.Committed == "":
		return s.Pending
	default:
		return s.Committed + " " + s.Pending
	}
}

// StyleHint carries per-recording preferences to the transcription provider.
type StyleHint struct {
	ProfileID string
	Language  string
}

// StopResult describes the outcome of one processed recording.
type StopResult struct {
	ClientSessionID string `json:"clientSessionId"`
	RawTranscript   string `json:"rawTranscript"`
	FinalTranscript string `json:"finalTranscript"`
	Refined         bool   `json:"refined"`
	Inserted        bool   `json:"inserted"`
}

// Status summarizes the current runtime status.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Message string       `json:"message,omitempty"`
}

// Formatting holds the per-profile output options.
type Formatting struct {
	Bullets        bool   `json:"bullets,omitempty"`
	MaxLength      int    `json:"max_length,omitempty"`
	Capitalization string `json:"capitalization,omitempty"`
	Paragraphs     bool   `json:"paragraphs,omitempty"`
	PreserveCode   bool   `json:"preserve_code,omitempty"`
}

// Profile is the style profile owned by the profile editor.
type Profile struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"user_id"`
	AppKey     string     `json:"app_key"`
	Tone       string     `json:"tone"`
	Language   string     `json:"language"`
	Formatting Formatting `json:"formatting"`
	IsDefault  bool       `json:"is_default"`
}

const (
	DefaultTone     = "professional"
	DefaultLanguage = "nl-NL"
)

// WithDefaults fills tone and language when the profile leaves them empty.
func (p Profile) WithDefaults() Profile {
	if p.Tone == "" {
		p.Tone = DefaultTone
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	return p
}
