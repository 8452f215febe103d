package plantuml

import (
	"fmt"
	"strings"
)

// RelationForm is one of the three textual relationship forms.
type RelationForm int

const (
	// FormForward is `"A" --> "B"`: A is the source.
	FormForward RelationForm = iota
	// FormReverse is `"A" <-- "B"`: B is the source.
	FormReverse
	// FormInclude is `"A" .> "B" : include`: A includes B.
	FormInclude
)

func (f RelationForm) String() string {
	switch f {
	case FormForward:
		return "-->"
	case FormReverse:
		return "<--"
	case FormInclude:
		return ".>"
	}
	return fmt.Sprintf("RelationForm(%d)", int(f))
}

// Declaration is a quoted name introduced by a keyword.
type Declaration struct {
	Name string
	Line int
}

// Block is a well-formed `rectangle <name> { ... }` block.
type Block struct {
	Name     string
	Line     int
	UseCases []Declaration
}

// Relation is a recognized relationship between two quoted names, as written.
type Relation struct {
	Form  RelationForm
	Left  string
	Right string
	Line  int
}

// Source returns the name the relation originates from.
func (r Relation) Source() string {
	if r.Form == FormReverse {
		return r.Right
	}
	return r.Left
}

// Target returns the name the relation points to.
func (r Relation) Target() string {
	if r.Form == FormReverse {
		return r.Left
	}
	return r.Right
}

// IssueKind classifies a malformed fragment.
type IssueKind string

const (
	IssueUnterminatedName  IssueKind = "unterminated_name"
	IssueUnterminatedBlock IssueKind = "unterminated_block"
	IssueUnbalancedBrace   IssueKind = "unbalanced_brace"
)

// Issue describes a fragment that was skipped. Issues are informational: the
// reader never fails, it only recognizes well-formed fragments.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Line    int       `json:"line"`
	Col     int       `json:"col"`
	Message string    `json:"message"`
}

// Document is everything the reader recognized in a text, in textual order.
// Names are not yet deduplicated.
type Document struct {
	Actors    []Declaration
	Blocks    []Block
	UseCases  []Declaration // declared outside any well-formed block
	Relations []Relation
	Issues    []Issue
}

// Read recognizes declarations and relations in src. Use cases inside a
// rectangle block that is never closed are treated as standalone. Nested
// rectangles are flattened into the outermost block.
func Read(src string) *Document {
	r := &reader{toks: Tokenize(src), doc: &Document{}}
	r.run()
	return r.doc
}

type reader struct {
	toks []Token
	i    int
	doc  *Document

	block      *Block
	blockDepth int // brace depth inside the open block, 0 when none is open
	openBraces int // unrelated braces outside any block
	blockTok   Token
}

func (r *reader) at(offset int) Token {
	if j := r.i + offset; j < len(r.toks) {
		return r.toks[j]
	}
	return Token{Kind: TokenEOF}
}

func isKeyword(t Token, kw string) bool {
	return t.Kind == TokenIdent && strings.EqualFold(t.Text, kw)
}

func (r *reader) issue(kind IssueKind, t Token, format string, args ...any) {
	r.doc.Issues = append(r.doc.Issues, Issue{
		Kind:    kind,
		Line:    t.Line,
		Col:     t.Col,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *reader) run() {
	for r.i < len(r.toks) {
		r.i += r.step()
	}
	if r.block != nil {
		r.issue(IssueUnterminatedBlock, r.blockTok, "rectangle %q is never closed", r.block.Name)
		r.doc.UseCases = append(r.doc.UseCases, r.block.UseCases...)
		r.block = nil
	}
}

// step recognizes one statement at the cursor and returns how many tokens it
// consumed. Unrecognized tokens consume one. Declarations consume only their
// keyword so the quoted name can still open a relation on the same line.
func (r *reader) step() int {
	t := r.at(0)
	switch {
	case t.Kind == TokenIllegal:
		r.issue(IssueUnterminatedName, t, "quoted name %q is missing its closing quote", t.Text)
		return 1

	case isKeyword(t, "actor") && r.at(1).Kind == TokenString:
		r.doc.Actors = append(r.doc.Actors, Declaration{Name: r.at(1).Text, Line: t.Line})
		return 1

	case isKeyword(t, "usecase") && r.at(1).Kind == TokenString:
		decl := Declaration{Name: r.at(1).Text, Line: t.Line}
		if r.block != nil {
			r.block.UseCases = append(r.block.UseCases, decl)
		} else {
			r.doc.UseCases = append(r.doc.UseCases, decl)
		}
		return 1

	case isKeyword(t, "rectangle") && isBlockName(r.at(1)) && r.at(2).Kind == TokenLBrace:
		if r.block != nil {
			r.blockDepth++
		} else {
			r.block = &Block{Name: r.at(1).Text, Line: t.Line}
			r.blockDepth = 1
			r.blockTok = t
		}
		return 3

	case t.Kind == TokenLBrace:
		if r.block != nil {
			r.blockDepth++
		} else {
			r.openBraces++
		}
		return 1

	case t.Kind == TokenRBrace:
		r.closeBrace(t)
		return 1

	case t.Kind == TokenString && r.at(1).Kind == TokenArrow && r.at(2).Kind == TokenString:
		return r.relation()
	}
	return 1
}

func isBlockName(t Token) bool {
	return t.Kind == TokenIdent || t.Kind == TokenString
}

func (r *reader) closeBrace(t Token) {
	switch {
	case r.block != nil:
		r.blockDepth--
		if r.blockDepth == 0 {
			r.doc.Blocks = append(r.doc.Blocks, *r.block)
			r.block = nil
		}
	case r.openBraces > 0:
		r.openBraces--
	default:
		r.issue(IssueUnbalancedBrace, t, "closing brace without a matching block")
	}
}

// relation recognizes `"A" <arrow> "B"` at the cursor. Arrows other than the
// three known forms, and `.>` without `: include`, are not relations; the
// cursor then moves by one so the right-hand name can start a new match.
func (r *reader) relation() int {
	left, arrow, right := r.at(0), r.at(1), r.at(2)
	rel := Relation{Left: left.Text, Right: right.Text, Line: left.Line}
	switch arrow.Text {
	case "-->":
		rel.Form = FormForward
	case "<--":
		rel.Form = FormReverse
	case ".>":
		if r.at(3).Kind != TokenColon || !isKeyword(r.at(4), "include") {
			return 1
		}
		rel.Form = FormInclude
		r.doc.Relations = append(r.doc.Relations, rel)
		return 5
	default:
		return 1
	}
	r.doc.Relations = append(r.doc.Relations, rel)
	return 3
}

// IncludedNames returns the set of names that are the target of an include.
func (d *Document) IncludedNames() map[string]struct{} {
	out := make(map[string]struct{})
	for _, rel := range d.Relations {
		if rel.Form == FormInclude {
			out[rel.Target()] = struct{}{}
		}
	}
	return out
}
