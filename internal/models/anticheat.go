package models

import (
	"time"

	"github.com/google/uuid"
)

type ViolationType string

const (
	ViolationTabSwitch          ViolationType = "tab_switch"
	ViolationFullscreenExit     ViolationType = "fullscreen_exit"
	ViolationPageReload         ViolationType = "page_reload"
	ViolationDevtoolsOpen       ViolationType = "devtools_open"
	ViolationTimeTampering      ViolationType = "time_tampering"
	ViolationStorageTampering   ViolationType = "storage_tampering"
	ViolationNetworkDisconnect  ViolationType = "network_disconnect"
	ViolationCopyPaste          ViolationType = "copy_paste"
	ViolationRightClick         ViolationType = "right_click"
	ViolationTextSelection      ViolationType = "text_selection"
	ViolationJavascriptDisabled ViolationType = "javascript_disabled"
)

type AntiCheatLog struct {
	ID               uuid.UUID     `json:"id"`
	AttemptID        uuid.UUID     `json:"attempt_id"`
	StudentID        uuid.UUID     `json:"student_id"`
	StudentName      string        `json:"student_name"`
	StudentEmail     string        `json:"student_email"`
	TestID           uuid.UUID     `json:"test_id"`
	TestTitle        string        `json:"test_title"`
	ViolationType    ViolationType `json:"violation_type"`
	ViolationDetails *string       `json:"violation_details,omitempty"`
	IPAddress        string        `json:"ip_address,omitempty"`
	UserAgent        string        `json:"user_agent,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

type ViolationRequest struct {
	ViolationType ViolationType `json:"violation_type" validate:"required,oneof=tab_switch fullscreen_exit page_reload devtools_open time_tampering storage_tampering network_disconnect copy_paste right_click text_selection javascript_disabled"`
	Details       *string       `json:"details" validate:"omitempty,max=500"`
}

var ViolationTypes = []ViolationType{
	ViolationTabSwitch, ViolationFullscreenExit, ViolationPageReload, ViolationDevtoolsOpen,
	ViolationTimeTampering, ViolationStorageTampering, ViolationNetworkDisconnect,
	ViolationCopyPaste, ViolationRightClick, ViolationTextSelection, ViolationJavascriptDisabled,
}

func (v ViolationType) Valid() bool {
	for _, t := range ViolationTypes {
		if t == v {
			return true
		}
	}
	return false
}
