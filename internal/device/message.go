package device

import (
	"encoding/json"

	apperrors "github.com/NovaGlider/musicboom/internal/errors"
)

// Message type names
const (
	msgOk                = "Ok"
	msgError             = "Error"
	msgPing              = "Ping"
	msgRequestServerInfo = "RequestServerInfo"
	msgServerInfo        = "ServerInfo"
	msgStartScanning     = "StartScanning"
	msgStopScanning      = "StopScanning"
	msgScanningFinished  = "ScanningFinished"
	msgRequestDeviceList = "RequestDeviceList"
	msgDeviceList        = "DeviceList"
	msgDeviceAdded       = "DeviceAdded"
	msgDeviceRemoved     = "DeviceRemoved"
	msgScalarCmd         = "ScalarCmd"
	msgStopDeviceCmd     = "StopDeviceCmd"
)

// request is any client message; the client assigns its id before sending.
type request interface {
	setID(id uint32)
}

type header struct {
	ID uint32 `json:"Id"`
}

func (h *header) setID(id uint32) { h.ID = id }

type requestServerInfo struct {
	header
	ClientName     string `json:"ClientName"`
	MessageVersion int    `json:"MessageVersion"`
}

type empty struct {
	header
}

type deviceIndex struct {
	header
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// Scalar is one actuator value in a ScalarCmd.
type Scalar struct {
	Index        int     `json:"Index"`
	Scalar       float64 `json:"Scalar"`
	ActuatorType string  `json:"ActuatorType"`
}

type scalarCmd struct {
	header
	DeviceIndex uint32   `json:"DeviceIndex"`
	Scalars     []Scalar `json:"Scalars"`
}

type serverInfo struct {
	header
	ServerName     string `json:"ServerName"`
	MessageVersion int    `json:"MessageVersion"`
	MaxPingTime    int    `json:"MaxPingTime"`
}

type errorMsg struct {
	header
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

// Feature describes one actuator attribute reported by the server.
type Feature struct {
	FeatureDescriptor string `json:"FeatureDescriptor"`
	StepCount         int    `json:"StepCount"`
	ActuatorType      string `json:"ActuatorType"`
}

// Info describes a device known to the server.
type Info struct {
	Name     string `json:"DeviceName"`
	Index    uint32 `json:"DeviceIndex"`
	Messages struct {
		ScalarCmd []Feature `json:"ScalarCmd,omitempty"`
	} `json:"DeviceMessages"`
}

// Vibrators returns the ScalarCmd indices of the device's vibrate actuators.
func (d Info) Vibrators() []int {
	var idx []int
	for i, f := range d.Messages.ScalarCmd {
		if f.ActuatorType == ActuatorVibrate {
			idx = append(idx, i)
		}
	}
	return idx
}

type deviceAdded struct {
	header
	Info
}

type deviceList struct {
	header
	Devices []Info `json:"Devices"`
}

// envelope is one entry of the message array: {"Type": {...}}.
type envelope map[string]json.RawMessage

func encode(name string, body any) []envelope {
	raw, _ := json.Marshal(body)
	return []envelope{{name: raw}}
}

// reply is a server message routed to the caller that sent its id.
type reply struct {
	name string
	raw  json.RawMessage
}

// asError converts an Error reply into an application error.
func (r reply) asError() error {
	if r.name != msgError {
		return nil
	}
	var m errorMsg
	if err := json.Unmarshal(r.raw, &m); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDeviceProtocol, "decode Error message")
	}
	return serverError(m)
}

func serverError(m errorMsg) *apperrors.AppError {
	var code apperrors.Code
	switch m.ErrorCode {
	case ErrorPing:
		code = apperrors.CodeDeviceConnectionLost
	case ErrorInit, ErrorMessage:
		code = apperrors.CodeDeviceProtocol
	default:
		code = apperrors.CodeDeviceCommandFailed
	}
	return apperrors.New(code, m.ErrorMessage)
}
