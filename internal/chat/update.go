package chat

import "classhub/pkg/types"

// UpdateKind names a change pushed to the presentation
type UpdateKind string

const (
	UpdateLoading  UpdateKind = "loading"  // history read started
	UpdateSnapshot UpdateKind = "snapshot" // whole list replaced atomically
	UpdateAppend   UpdateKind = "append"   // one live row inserted at Index
	UpdateError    UpdateKind = "error"    // failure; the previous list stays valid
	UpdateStatus   UpdateKind = "status"   // class lifecycle changed
	UpdateLeft     UpdateKind = "left"     // no class selected any more
)

// Update is one change to a viewer's chat. It doubles as the websocket frame.
type Update struct {
	Kind     UpdateKind           `json:"type"`
	ClassID  string               `json:"class_id,omitempty"`
	Messages []*types.ChatMessage `json:"messages,omitempty"`
	Message  *types.ChatMessage   `json:"message,omitempty"`
	Index    int                  `json:"index"`
	Class    *types.ClassSession  `json:"class,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// StatusUpdate announces a lifecycle transition of class
func StatusUpdate(class *types.ClassSession) Update {
	return Update{Kind: UpdateStatus, ClassID: class.ID, Class: class}
}

// ErrorUpdate reports err for classID
func ErrorUpdate(classID string, err error) Update {
	return Update{Kind: UpdateError, ClassID: classID, Error: err.Error()}
}

// Stats counts what the view did with deliveries
type Stats struct {
	Delivered    int // live rows inserted into the visible list
	Duplicates   int // rows dropped because their id was already shown
	Stale        int // rows dropped because the view moved to another class
	Placeholders int // rows shown with an unresolved author
	Pending      int // live rows buffered until history arrives
	HistoryLoads int
	LoadFailures int
}
