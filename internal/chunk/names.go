package chunk

// declName extracts the declared name from a function/method/type node.
// Grammars disagree on where the identifier lives (Go methods use
// field_identifier, JS consts nest it inside a declarator), so the
// lookup is per language. Empty means no name could be found; callers
// treat the declaration as anonymous.
func declName(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		return goDeclName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return jsDeclName(n, source)
	default:
		return childContent(n, source, "identifier")
	}
}

func goDeclName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		return childContent(n, source, "identifier")
	case "method_declaration":
		return childContent(n, source, "field_identifier")
	case "type_declaration":
		if spec := n.FindChildByType("type_spec"); spec != nil {
			return childContent(spec, source, "type_identifier")
		}
	}
	return ""
}

func jsDeclName(n *Node, source []byte) string {
	// const f = () => {} and friends keep the name one level down.
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		if decl := n.FindChildByType("variable_declarator"); decl != nil {
			return childContent(decl, source, "identifier")
		}
		return ""
	}
	if name := childContent(n, source, "identifier"); name != "" {
		return name
	}
	if name := childContent(n, source, "type_identifier"); name != "" {
		return name
	}
	return childContent(n, source, "property_identifier")
}

func childContent(n *Node, source []byte, nodeType string) string {
	if c := n.FindChildByType(nodeType); c != nil {
		return c.GetContent(source)
	}
	return ""
}
