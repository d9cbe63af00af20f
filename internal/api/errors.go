package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"indian-stock-api/internal/brokererr"
)

// networkMarkers identify transport failures that only surface as text.
var networkMarkers = []string{"ECONNRESET", "Connection aborted.", "Connection broken:"}

// Classify maps a transport or status failure to a broker error kind. The
// checks run in a fixed precedence order and the first match wins.
func Classify(brokerID, method, url string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := brokererr.KindOf(err); ok {
		return err
	}

	tag := fmt.Sprintf("%s %s %s", brokerID, method, url)
	tlsFailure := isTLSError(err)

	switch {
	case isTimeout(err):
		return brokererr.Wrap(brokererr.KindTimeout, err, tag)

	case !tlsFailure && isConnectionError(err):
		details := strings.Join([]string{brokerID, method, url, err.Error()}, " ")
		if strings.Contains(err.Error(), "Read timed out") {
			return brokererr.Wrap(brokererr.KindTimeout, err, details)
		}
		return brokererr.Wrap(brokererr.KindNetwork, err, details)

	case errors.Is(err, syscall.ECONNRESET):
		return brokererr.Wrap(brokererr.KindNetwork, err, tag)

	case errors.Is(err, ErrTooManyRedirects):
		return brokererr.Wrap(brokererr.KindBroker, err, tag)

	case tlsFailure:
		return brokererr.Wrap(brokererr.KindBroker, err, tag)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Response != nil {
			r := statusErr.Response
			details := fmt.Sprintf("%s %s %d %s %s", brokerID, method, r.StatusCode, url, string(r.Body))
			return brokererr.Wrap(brokererr.KindBroker, err, details)
		}
		return brokererr.Wrap(brokererr.KindBroker, err, tag+" (no response available)")
	}

	text := err.Error()
	for _, marker := range networkMarkers {
		if strings.Contains(text, marker) {
			return brokererr.Wrap(brokererr.KindNetwork, err, tag+" "+text)
		}
	}
	return brokererr.Wrap(brokererr.KindBroker, err, tag+" "+text)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConnectionError reports dial, read and write failures on the socket,
// including a peer that hangs up before or during the response.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		unknownAuth x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}
