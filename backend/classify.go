package backend

import (
	"bytes"
	"strconv"
)

// classify inspects one header line (CRLF already stripped) and reports its
// Kind, first token, and value length, per §4.3's Read-state dispatch.
// For VALUE and VA lines the returned length is the data block as it sits
// on the wire: the advertised byte count plus its trailing CRLF.
// Ground truth is proxy_server_drive_machine's switch over the first bytes
// of the response, generalized to also recognize meta-protocol lines (the
// C source the spec distills only forwards the classic ASCII protocol
// between proxy and backend, but this proxy's routing scripts may also
// speak meta upstream — see SPEC_FULL.md §4.1's meta-command expansion).
func classify(line []byte) (kind Kind, tok string, vlen int, err error) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return 0, "", 0, errf("empty response line")
	}
	tok = string(fields[0])

	switch tok {
	case "VALUE":
		// VALUE <key> <flags> <bytes> [<cas>]
		if len(fields) < 4 {
			return 0, tok, 0, errf("malformed VALUE line")
		}
		n, perr := strconv.Atoi(string(fields[3]))
		if perr != nil || n < 0 {
			return 0, tok, 0, errf("malformed VALUE length")
		}
		return KindGet, tok, n + 2, nil

	case "END":
		return KindEnd, tok, 0, nil

	case "VA":
		// VA <size> <flags>*
		if len(fields) < 2 {
			return 0, tok, 0, errf("malformed VA line")
		}
		n, perr := strconv.Atoi(string(fields[1]))
		if perr != nil || n < 0 {
			return 0, tok, 0, errf("malformed VA length")
		}
		return KindMeta, tok, n + 2, nil

	case "HD", "EN", "NS", "NF", "EX", "MN", "ME":
		return KindMeta, tok, 0, nil

	case "STORED", "NOT_STORED", "DELETED", "NOT_FOUND", "EXISTS", "OK",
		"ERROR", "TOUCHED":
		return KindGeneric, tok, 0, nil

	case "CLIENT_ERROR", "SERVER_ERROR":
		return KindGeneric, tok, 0, nil

	default:
		// A bare decimal number answers incr/decr.
		if _, perr := strconv.ParseUint(tok, 10, 64); perr == nil {
			return KindGeneric, tok, 0, nil
		}
		return 0, tok, 0, errf("unrecognized response line: " + tok)
	}
}

type classifyError struct{ msg string }

func (e *classifyError) Error() string { return e.msg }

func errf(msg string) error { return &classifyError{msg: msg} }
