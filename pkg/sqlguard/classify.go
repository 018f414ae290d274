package sqlguard

// Class is the data-access category of a statement
type Class int

const (
	// ClassUnknown is anything the classifier cannot place. It is enforced
	// exactly like ClassWrite.
	ClassUnknown Class = iota
	ClassRead
	ClassWrite
	ClassDDL
)

func (c Class) String() string {
	switch c {
	case ClassRead:
		return "read"
	case ClassWrite:
		return "write"
	case ClassDDL:
		return "ddl"
	default:
		return "unknown"
	}
}

// DDLPolicy decides which capability a DDL statement requires
type DDLPolicy int

const (
	// DDLRequiresDDL requires the distinct DDL capability; WRITE alone is not enough
	DDLRequiresDDL DDLPolicy = iota
	// DDLRequiresWrite treats DDL as a write; the DDL capability also satisfies it
	DDLRequiresWrite
)

func (p DDLPolicy) String() string {
	if p == DDLRequiresWrite {
		return "write"
	}
	return "ddl"
}

// ParseDDLPolicy parses "ddl" (distinct) or "write" (shared). Empty means ddl.
func ParseDDLPolicy(s string) (DDLPolicy, bool) {
	switch s {
	case "", "ddl", "distinct":
		return DDLRequiresDDL, true
	case "write", "shared":
		return DDLRequiresWrite, true
	default:
		return DDLRequiresDDL, false
	}
}

var dmlKeywords = map[string]Class{
	"SELECT":  ClassRead,
	"VALUES":  ClassRead,
	"INSERT":  ClassWrite,
	"UPDATE":  ClassWrite,
	"DELETE":  ClassWrite,
	"REPLACE": ClassWrite,
}

var ddlKeywords = map[string]bool{
	"CREATE":   true,
	"DROP":     true,
	"ALTER":    true,
	"TRUNCATE": true,
	"RENAME":   true,
}

// queryPragmas take a table or index name argument and only report on it
var queryPragmas = map[string]bool{
	"FOREIGN_KEY_CHECK": true,
	"FOREIGN_KEY_LIST":  true,
	"INDEX_INFO":        true,
	"INDEX_LIST":        true,
	"INDEX_XINFO":       true,
	"INTEGRITY_CHECK":   true,
	"QUICK_CHECK":       true,
	"TABLE_INFO":        true,
	"TABLE_LIST":        true,
	"TABLE_XINFO":       true,
}

// statePragmas report a setting when issued bare. Given an argument, either
// as "= value" or "(value)", they change it.
var statePragmas = map[string]bool{
	"APPLICATION_ID":  true,
	"BUSY_TIMEOUT":    true,
	"CACHE_SIZE":      true,
	"COLLATION_LIST":  true,
	"COMPILE_OPTIONS": true,
	"DATABASE_LIST":   true,
	"ENCODING":        true,
	"FOREIGN_KEYS":    true,
	"FREELIST_COUNT":  true,
	"FUNCTION_LIST":   true,
	"JOURNAL_MODE":    true,
	"PAGE_COUNT":      true,
	"PAGE_SIZE":       true,
	"PRAGMA_LIST":     true,
	"SCHEMA_VERSION":  true,
	"SYNCHRONOUS":     true,
	"USER_VERSION":    true,
}

// Classify returns the class of every statement in query, in order. A
// tokenizer failure or text without statements yields a single ClassUnknown.
func Classify(query string) []Class {
	tokens, err := tokenize(query)
	if err != nil {
		return []Class{ClassUnknown}
	}

	statements, err := splitStatements(tokens)
	if err != nil || len(statements) == 0 {
		return []Class{ClassUnknown}
	}

	classes := make([]Class, 0, len(statements))
	for _, stmt := range statements {
		classes = append(classes, classifyStatement(stmt))
	}
	return classes
}

// ClassifyOne returns the class of a single-statement query. Text holding
// more than one statement with differing classes is ClassUnknown.
func ClassifyOne(query string) Class {
	classes := Classify(query)
	first := classes[0]
	for _, c := range classes[1:] {
		if c != first {
			return ClassUnknown
		}
	}
	return first
}

func classifyStatement(stmt []token) Class {
	first := stmt[0]
	if first.kind != tokenWord {
		return ClassUnknown
	}

	if class, ok := dmlKeywords[first.text]; ok {
		return class
	}
	if ddlKeywords[first.text] {
		return ClassDDL
	}

	switch first.text {
	case "WITH":
		return classifyCTE(stmt[1:])
	case "PRAGMA":
		return classifyPragma(stmt[1:])
	case "EXPLAIN":
		rest := stmt[1:]
		if len(rest) >= 2 && rest[0].isWord("QUERY") && rest[1].isWord("PLAN") {
			rest = rest[2:]
		}
		if len(rest) == 0 {
			return ClassUnknown
		}
		return classifyStatement(rest)
	}

	return ClassUnknown
}

// classifyCTE finds the keyword that starts the primary statement after the
// CTE definitions: the first statement keyword at parenthesis depth zero.
// Everything inside the CTE bodies is nested in parentheses and skipped.
func classifyCTE(rest []token) Class {
	depth := 0
	for _, t := range rest {
		switch t.kind {
		case tokenOpenParen:
			depth++
			continue
		case tokenCloseParen:
			depth--
			if depth < 0 {
				return ClassUnknown
			}
			continue
		}
		if depth != 0 || t.kind != tokenWord {
			continue
		}
		if class, ok := dmlKeywords[t.text]; ok {
			return class
		}
		if ddlKeywords[t.text] {
			return ClassDDL
		}
	}
	return ClassUnknown
}

func classifyPragma(rest []token) Class {
	if len(rest) == 0 || rest[0].kind != tokenWord {
		return ClassUnknown
	}

	name := rest[0].text
	rest = rest[1:]
	// schema-qualified: PRAGMA main.table_info(...)
	if len(rest) >= 2 && rest[0].kind == tokenPunct && rest[0].text == "." && rest[1].kind == tokenWord {
		name = rest[1].text
		rest = rest[2:]
	}

	for _, t := range rest {
		if t.kind == tokenPunct && t.text == "=" {
			return ClassWrite
		}
	}

	switch {
	case len(rest) == 0 && (statePragmas[name] || queryPragmas[name]):
		return ClassRead
	case queryPragmas[name] && len(rest) >= 2 && rest[0].kind == tokenOpenParen && rest[len(rest)-1].kind == tokenCloseParen:
		return ClassRead
	default:
		return ClassWrite
	}
}

// RequiredCapabilities returns what a statement of class c needs under policy
func RequiredCapabilities(c Class, policy DDLPolicy) Capabilities {
	switch c {
	case ClassRead:
		return NewCapabilities(Read)
	case ClassDDL:
		if policy == DDLRequiresDDL {
			return NewCapabilities(DDL)
		}
		return NewCapabilities(Write)
	default:
		return NewCapabilities(Write)
	}
}

// satisfies reports whether granted covers class c. Under DDLRequiresWrite a
// DDL grant is accepted in place of WRITE for DDL statements.
func satisfies(granted Capabilities, c Class, policy DDLPolicy) bool {
	if c == ClassDDL && policy == DDLRequiresWrite && granted.Contains(DDL) {
		return true
	}
	return granted.Has(RequiredCapabilities(c, policy))
}
