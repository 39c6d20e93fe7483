package control

import (
	"errors"
	"fmt"
	"io"
)

// Each connection to the control socket is one session attempt. The server
// answers the connection with a status byte (the OpenSession outcome), then
// serves one operation byte at a time:
//
//	fetch:  -> opFetch            <- status [record]
//	submit: -> opSubmit record    <- status
const (
	opFetch  byte = 0x01
	opSubmit byte = 0x02
)

const (
	statusOK byte = iota
	statusBusy
	statusProtocolViolation
	statusDenied
	statusBadRequest
)

var errBadRequest = errors.New("control channel bad request")

func statusFor(err error) byte {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, ErrBusy):
		return statusBusy
	case errors.Is(err, ErrProtocolViolation):
		return statusProtocolViolation
	case errors.Is(err, ErrDenied):
		return statusDenied
	default:
		return statusBadRequest
	}
}

func errorFor(status byte) error {
	switch status {
	case statusOK:
		return nil
	case statusBusy:
		return ErrBusy
	case statusProtocolViolation:
		return ErrProtocolViolation
	case statusDenied:
		return ErrDenied
	case statusBadRequest:
		return errBadRequest
	default:
		return fmt.Errorf("control channel: unknown status 0x%02x", status)
	}
}

func writeStatus(w io.Writer, status byte) error {
	_, err := w.Write([]byte{status})
	return err
}

func readStatus(r io.Reader) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	return errorFor(b[0])
}
