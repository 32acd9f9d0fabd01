package request

import (
	"strconv"

	"github.com/mcproxy/mcproxy/meta"
)

// ParseError mirrors the teacher's meta.ParseError shape: a message plus an
// optional wrapped cause, always fatal to the client connection per §7's
// "Client protocol error" row — except the adapter replies CLIENT_ERROR
// rather than closing outright when the line itself was well-formed enough
// to identify a command.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse error: " + e.Message + ": " + e.Err.Error()
	}
	return "parse error: " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

func errf(msg string) error { return &ParseError{Message: msg} }

func wrapf(msg string, err error) error { return &ParseError{Message: msg, Err: err} }

// Parse tokenizes one CRLF-stripped command line into a Request. line must
// already have its trailing CRLF removed. Commands are dispatched by
// length then memcmp, per §4.1: length 2 for the meta family, 3 for
// get/set, 6 for delete, and so on — lengths outside that set are rejected
// rather than guessed at.
func Parse(line []byte) (*Request, error) {
	tokens := splitTokens(line)
	if len(tokens) == 0 {
		return nil, errf("empty command line")
	}

	cmdTok := tokens[0]
	req := &Request{CommandToken: cmdTok, raw: line}

	switch len(cmdTok) {
	case 2:
		return parseMeta(req, cmdTok, tokens)
	case 3:
		switch string(cmdTok) {
		case "get":
			return parseRetrieval(req, CmdGet, tokens)
		case "set":
			return parseStorage(req, CmdSet, tokens)
		}
	case 4:
		switch string(cmdTok) {
		case "gets":
			return parseRetrieval(req, CmdGets, tokens)
		case "incr":
			return parseArithmetic(req, CmdIncr, tokens)
		case "decr":
			return parseArithmetic(req, CmdDecr, tokens)
		}
	}

	switch string(cmdTok) {
	case "add":
		return parseStorage(req, CmdAdd, tokens)
	case "cas":
		return parseCas(req, tokens)
	case "touch":
		return parseTouch(req, tokens)
	case "delete":
		return parseRetrieval(req, CmdDelete, tokens)
	case "replace":
		return parseStorage(req, CmdReplace, tokens)
	case "append":
		return parseStorage(req, CmdAppend, tokens)
	case "prepend":
		return parseStorage(req, CmdPrepend, tokens)
	}

	return nil, errf("unknown command: " + string(cmdTok))
}

// splitTokens performs the single left-to-right scan over the command
// bytes, splitting on spaces. A run of spaces counts as one delimiter, so
// no empty tokens are produced; unlike strings.Fields, only ' ' splits
// (tabs and other whitespace stay inside tokens).
func splitTokens(line []byte) [][]byte {
	var tokens [][]byte
	start := -1
	for i, b := range line {
		if b == ' ' {
			if start >= 0 {
				tokens = append(tokens, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, line[start:])
	}
	return tokens
}

func parseRetrieval(req *Request, cmd Command, tokens [][]byte) (*Request, error) {
	if len(tokens) < 2 {
		return nil, errf("missing key")
	}
	req.Command = cmd
	req.KeyToken = tokens[1]
	return req, nil
}

// parseStorage handles set/add/replace/append/prepend: three decimal
// fields after the key (flags, exptime, vlen), plus an optional trailing
// "noreply" token.
func parseStorage(req *Request, cmd Command, tokens [][]byte) (*Request, error) {
	if len(tokens) < 5 {
		return nil, errf("malformed storage command")
	}
	req.Command = cmd
	req.KeyToken = tokens[1]

	flags, err := parseUint32(tokens[2])
	if err != nil {
		return nil, wrapf("invalid flags", err)
	}
	exptime, err := parseInt64(tokens[3])
	if err != nil {
		return nil, wrapf("invalid exptime", err)
	}
	vlen, err := parseVLen(tokens[4])
	if err != nil {
		return nil, err
	}

	req.Flags = flags
	req.Exptime = exptime
	req.VLen = vlen + 2

	if len(tokens) >= 6 {
		req.NoReply = string(tokens[5]) == "noreply"
	}
	return req, nil
}

func parseCas(req *Request, tokens [][]byte) (*Request, error) {
	if len(tokens) < 6 {
		return nil, errf("malformed cas command")
	}
	r, err := parseStorage(req, CmdCas, tokens)
	if err != nil {
		return nil, err
	}
	casUniq, err := parseUint64(tokens[5])
	if err != nil {
		return nil, wrapf("invalid cas unique", err)
	}
	r.CasUniq = casUniq
	if len(tokens) >= 7 {
		r.NoReply = string(tokens[6]) == "noreply"
	}
	return r, nil
}

func parseArithmetic(req *Request, cmd Command, tokens [][]byte) (*Request, error) {
	if len(tokens) < 3 {
		return nil, errf("malformed arithmetic command")
	}
	req.Command = cmd
	req.KeyToken = tokens[1]
	delta, err := parseUint64(tokens[2])
	if err != nil {
		return nil, wrapf("invalid delta", err)
	}
	req.CasUniq = delta
	if len(tokens) >= 4 {
		req.NoReply = string(tokens[3]) == "noreply"
	}
	return req, nil
}

func parseTouch(req *Request, tokens [][]byte) (*Request, error) {
	if len(tokens) < 3 {
		return nil, errf("malformed touch command")
	}
	req.Command = CmdTouch
	req.KeyToken = tokens[1]
	exptime, err := parseInt64(tokens[2])
	if err != nil {
		return nil, wrapf("invalid exptime", err)
	}
	req.Exptime = exptime
	if len(tokens) >= 4 {
		req.NoReply = string(tokens[3]) == "noreply"
	}
	return req, nil
}

// parseMeta tokenizes the six two-byte meta commands and their flag list,
// per the retrieved meta-protocol package's flag-token grammar: a single
// flag letter optionally followed by a token, e.g. "T60", "Omytoken".
func parseMeta(req *Request, cmdTok []byte, tokens [][]byte) (*Request, error) {
	mc := meta.CmdType(cmdTok)
	switch mc {
	case meta.CmdGet, meta.CmdSet, meta.CmdDelete, meta.CmdArithmetic, meta.CmdDebug, meta.CmdNoOp:
	default:
		return nil, errf("unknown meta command: " + string(cmdTok))
	}

	req.Command = CmdMeta
	req.MetaCommand = mc

	rest := tokens[1:]
	if mc == meta.CmdNoOp {
		return req, nil
	}
	if len(rest) == 0 {
		return nil, errf("missing key")
	}
	req.KeyToken = rest[0]

	flags := make([]meta.Flag, 0, len(rest)-1)
	for _, tok := range rest[1:] {
		if len(tok) == 0 {
			continue
		}
		flags = append(flags, meta.Flag{
			Type:  meta.FlagType(tok[0]),
			Token: string(tok[1:]),
		})
	}
	req.MetaFlags = flags

	if mc == meta.CmdSet {
		vlen, err := parseVLen(rest[1])
		if err != nil {
			return nil, err
		}
		// ms <key> <size> <flags>*: the size token is positional, not a
		// flag, so it must be stripped back out of MetaFlags.
		if len(req.MetaFlags) > 0 {
			req.MetaFlags = req.MetaFlags[1:]
		}
		req.VLen = vlen + 2
	}

	return req, nil
}

// parseVLen parses the size field shared by set and ms, enforcing
// 0 ≤ vlen ≤ MaxValueLen (INT_MAX-2) before the +2 CRLF adjustment.
func parseVLen(tok []byte) (int, error) {
	n, err := strconv.Atoi(string(tok))
	if err != nil {
		return 0, wrapf("invalid length", err)
	}
	if n < 0 || n > MaxValueLen {
		return 0, errf("length out of range")
	}
	return n, nil
}

func parseUint32(tok []byte) (uint32, error) {
	n, err := strconv.ParseUint(string(tok), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func parseUint64(tok []byte) (uint64, error) {
	return strconv.ParseUint(string(tok), 10, 64)
}

func parseInt64(tok []byte) (int64, error) {
	return strconv.ParseInt(string(tok), 10, 64)
}
