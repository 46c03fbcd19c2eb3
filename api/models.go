package api

import (
	"sort"

	"github.com/GetStream/channel-session/session"
)

// overlay is the JSON view of a session's overlay state.
type overlay struct {
	Kind                  string   `json:"kind"`
	MessageID             string   `json:"message_id,omitempty"`
	Actions               []string `json:"actions,omitempty"`
	ActionSheetVisible    bool     `json:"action_sheet_visible"`
	ReactionPickerVisible bool     `json:"reaction_picker_visible"`
}

// navigation is the JSON view of a navigation request to the client.
type navigation struct {
	Screen string            `json:"screen"`
	Params map[string]string `json:"params,omitempty"`
}

func newOverlay(st session.OverlayState, sheet, picker *surface) overlay {
	o := overlay{
		Kind:                  st.Kind().String(),
		ActionSheetVisible:    sheet.Visible(),
		ReactionPickerVisible: picker.Visible(),
	}
	switch st := st.(type) {
	case session.ActionSheet:
		o.MessageID = st.Message.ID
		o.Actions = make([]string, 0, len(st.Handlers))
		for a := range st.Handlers {
			o.Actions = append(o.Actions, string(a))
		}
		sort.Strings(o.Actions)
	case session.ReactionPicker:
		o.MessageID = st.Message.ID
	}
	return o
}
