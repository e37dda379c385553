package ollama

import "strings"

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// splitThinking separates <think> blocks from the visible text. An unclosed
// block runs to the end of the input.
func splitThinking(text string) (content, reasoning string) {
	var p thinkParser
	content, reasoning = p.feed(text)
	c, r := p.flush()
	return content + c, reasoning + r
}

// thinkParser splits streamed deltas, holding back a possible partial tag at
// the end of each chunk until the next one arrives.
type thinkParser struct {
	inside  bool
	pending string
}

func (p *thinkParser) feed(chunk string) (content, reasoning string) {
	text := p.pending + chunk
	p.pending = ""

	var out, think strings.Builder
	for text != "" {
		tag := openTag
		dst := &out
		if p.inside {
			tag = closeTag
			dst = &think
		}

		if i := strings.Index(text, tag); i >= 0 {
			dst.WriteString(text[:i])
			text = text[i+len(tag):]
			p.inside = !p.inside
			continue
		}

		keep := partialSuffix(text, tag)
		dst.WriteString(text[:len(text)-keep])
		p.pending = text[len(text)-keep:]
		break
	}
	return out.String(), think.String()
}

// flush releases held-back text once the stream is over.
func (p *thinkParser) flush() (content, reasoning string) {
	rest := p.pending
	p.pending = ""
	if p.inside {
		return "", rest
	}
	return rest, ""
}

// partialSuffix reports how many trailing bytes of text could begin tag.
func partialSuffix(text, tag string) int {
	n := len(tag) - 1
	if len(text) < n {
		n = len(text)
	}
	for ; n > 0; n-- {
		if strings.HasPrefix(tag, text[len(text)-n:]) {
			return n
		}
	}
	return 0
}
