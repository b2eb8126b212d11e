package batch

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// parseState is the position of the parser inside the multipart response.
type parseState int

const (
	stateExpectBoundary parseState = iota
	stateParsePartHeaders
	stateParseStatusLine
	stateParseHeaders
	stateParseBody
	stateDone
)

// Outcome collects per-operation results as the response is parsed.
// It starts empty and is populated part by part.
type Outcome struct {
	// Successes holds sub-operations with 2xx/3xx embedded status,
	// in response order.
	Successes []blobtypes.BatchResponse

	// Failures holds sub-operations with 4xx/5xx embedded status,
	// in response order.
	Failures []blobtypes.BatchFailure
}

// part accumulates one boundary-delimited part during parsing.
type part struct {
	index   int
	status  int
	headers http.Header
	body    []byte
}

// batchErrorXML mirrors the error body embedded in a failed part.
type batchErrorXML struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func protocolError(format string, args ...any) error {
	return errors.NewError("executeBatch", errors.ErrProtocol).
		WithMessage(fmt.Sprintf(format, args...))
}

// Parse demultiplexes a multipart batch response into per-operation
// outcomes. It is an explicit state machine over boundary-delimited
// parts; the strictly-increasing index invariant is asserted at the
// single point where a completed part is recorded. Any malformed framing,
// index regression, or failure part missing its status, error code, or
// message is a fatal protocol error.
func Parse(contentType string, body io.Reader) (*Outcome, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, protocolError("response content type %q is not multipart", contentType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, protocolError("response content type carries no boundary")
	}

	var (
		delim      = "--" + boundary
		closeDelim = delim + "--"
		r          = bufio.NewReader(body)
		st         = stateExpectBoundary
		outcome    = &Outcome{}
		lastIndex  = -1
		cur        *part
	)

	finishPart := func() error {
		// Single choke point for the ordering invariant: indices may skip
		// but never regress.
		if cur.index <= lastIndex {
			return protocolError("sub-response index %d not increasing (previous %d)", cur.index, lastIndex)
		}
		lastIndex = cur.index

		if cur.status < http.StatusBadRequest {
			outcome.Successes = append(outcome.Successes, blobtypes.BatchResponse{
				Index:   cur.index,
				Status:  cur.status,
				Headers: cur.headers,
			})
			return nil
		}

		code := cur.headers.Get("x-ms-error-code")
		message := ""
		var parsed batchErrorXML
		if xml.Unmarshal(cur.body, &parsed) == nil {
			if code == "" {
				code = parsed.Code
			}
			message = parsed.Message
		}
		if code == "" || message == "" {
			return protocolError("sub-response %d (status %d) is missing its error code or message", cur.index, cur.status)
		}
		outcome.Failures = append(outcome.Failures, blobtypes.BatchFailure{
			Index:     cur.index,
			Status:    cur.status,
			ErrorCode: code,
			Message:   message,
		})
		return nil
	}

	for st != stateDone {
		line, err := readLine(r)
		if err != nil {
			return nil, protocolError("unexpected end of batch response: %v", err)
		}

		switch st {
		case stateExpectBoundary:
			switch line {
			case closeDelim:
				st = stateDone
			case delim:
				cur = &part{index: -1, headers: http.Header{}}
				st = stateParsePartHeaders
			default:
				// Preamble before the first boundary is tolerated.
			}

		case stateParsePartHeaders:
			if line == "" {
				if cur.index < 0 {
					return nil, protocolError("part is missing its Content-ID")
				}
				st = stateParseStatusLine
				continue
			}
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, protocolError("malformed part header %q", line)
			}
			if strings.EqualFold(strings.TrimSpace(name), "Content-ID") {
				idx, convErr := strconv.Atoi(strings.TrimSpace(value))
				if convErr != nil || idx < 0 {
					return nil, protocolError("malformed Content-ID %q", strings.TrimSpace(value))
				}
				cur.index = idx
			}

		case stateParseStatusLine:
			if line == "" {
				continue
			}
			fields := strings.SplitN(line, " ", 3)
			if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
				return nil, protocolError("malformed status line %q", line)
			}
			status, convErr := strconv.Atoi(fields[1])
			if convErr != nil {
				return nil, protocolError("malformed status code in %q", line)
			}
			cur.status = status
			st = stateParseHeaders

		case stateParseHeaders:
			if line == "" {
				st = stateParseBody
				continue
			}
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return nil, protocolError("malformed sub-response header %q", line)
			}
			cur.headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))

		case stateParseBody:
			switch line {
			case delim:
				if err := finishPart(); err != nil {
					return nil, err
				}
				cur = &part{index: -1, headers: http.Header{}}
				st = stateParsePartHeaders
			case closeDelim:
				if err := finishPart(); err != nil {
					return nil, err
				}
				st = stateDone
			default:
				cur.body = append(cur.body, line...)
				cur.body = append(cur.body, '\n')
			}
		}
	}

	return outcome, nil
}

// readLine reads one line, tolerating both \r\n and \n endings.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
