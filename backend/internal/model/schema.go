package model

import "strings"

// Element types assigned to parsed model elements.
const (
	TypeDiagram      = "Diagram"
	TypeModelElement = "ModelElement"
)

// diagramKinds maps a diagram's stereotype or xmi:type to its kind.
var diagramKinds = map[string]string{
	"SysmlRequirementDiagram":   "Requirement Diagram",
	"SysmlInternalBlockDiagram": "Internal Block Diagram",
	"SysmlBlockDiagram":         "Block Definition Diagram",
	"SysMLStateDiagram":         "State Machine Diagram",
	"SysMLSequenceDiagram":      "Sequence Diagram",
	"SysMlPackageDiagram":       "Package Diagram",
	"SysMLParametricDiagram":    "Parametric Diagram",
	"SysmlParametricDiagram":    "Parametric Diagram",
	"TUsecaseDiagram":           "Use Case Diagram",
	"TUseCaseDiagram":           "Use Case Diagram",
	"TActivityDiagram":          "Activity Diagram",
	"TClassDiagram":             "Class Diagram",
	"TStateMachineDiagram":      "State Machine Diagram",
	"TSequenceDiagram":          "Sequence Diagram",
	"TParametricDiagram":        "Parametric Diagram",
	"TTable":                    "Table",
}

// stereotypeTypes maps lower-cased stereotypes to element types. Stereotypes
// win over every other type hint.
var stereotypeTypes = map[string]string{
	"requirement":     "Requirement",
	"block":           "Block",
	"constraintblock": "ConstraintBlock",
	"constraint":      "Constraint",
	"interfaceblock":  "InterfaceBlock",
	"valuetype":       "ValueType",
	"testcase":        "TestCase",
	"actor":           "Actor",
	"system":          "System",
	"subsystem":       "Subsystem",
}

// specificTypes maps the tool's dotted "type" attribute to element types.
var specificTypes = map[string]string{
	"SysML.IBD.PartProperty":      "Part",
	"SysML.IBD.ReferenceProperty": "Part",
	"SysML.IBD.FlowPort":          "Port",
	"SysML.IBD.ValueProperty":     "ValueProperty",
	"SysML.Parametric.Constraint": "ConstraintProperty",
	"SysML.Parametric.Parameter":  "ConstraintParameter",
	"SysML.BDD.ValueType":         "ValueType",
}

// xmiNodeTypes maps xmi:type (without prefix) to element types.
var xmiNodeTypes = map[string]string{
	"TUseCaseNode":               "UseCase",
	"TActorNode":                 "Actor",
	"TSubjectNode":               "Subject",
	"TPortNode":                  "Port",
	"TStructureClassNode":        "Block",
	"TActionNode":                "Action",
	"TCallBehaviorAction":        "Action",
	"TActivityNode":              "Activity",
	"TInitialNode":               "InitialNode",
	"TActivityFinalNode":         "FinalNode",
	"TDecisionNode":              "DecisionNode",
	"TInputPinNode":              "Pin",
	"TOutputPinNode":             "Pin",
	"TClassNode":                 "Class",
	"TInterfaceNode":             "Interface",
	"TStateMachineNode":          "StateMachine",
	"TRegionNode":                "Region",
	"TStateNode":                 "State",
	"TCompositeStateNode":        "State",
	"TInitialStateNode":          "InitialState",
	"TFinalStateNode":            "FinalState",
	"TChoiceStateNode":           "Pseudostate",
	"TJoinStateNode":             "Pseudostate",
	"TForkStateNode":             "Pseudostate",
	"TEntryPointNode":            "Pseudostate",
	"TExitPointNode":             "Pseudostate",
	"TLifelineNode_SD":           "Lifeline",
	"TCombinedFragmentNode":      "CombinedFragment",
	"TInteractionOperandNode":    "InteractionOperand",
	"TInteractionOccurrenceNode": "InteractionUse",
	"TStateInvariantNode":        "StateInvariant",
	"TPackageNode":               "Package",
	"TPackage":                   "Package",
	"TConstraintBlockNode":       "ConstraintBlock",
	"TConstraintPropertyNode":    "ConstraintProperty",
	"TModelElementNode":          TypeModelElement,
}

// visualNodeTypes are presentation-only nodes: labels, compartments and
// layout helpers. They never become graph elements.
var visualNodeTypes = map[string]bool{
	"SubLabel":             true,
	"TCommentNode":         true,
	"TEventOccurrenceNode": true,
	"TMountingLinkNode":    true,
	"TSplitterNode":        true,
}

var visualSpecificTypes = map[string]bool{
	"SubLabel":              true,
	"ListCompartmentChild":  true,
	"stereotype_properties": true,
	"HyperLink":             true,
	"Compartment":           true,
}

// referenceAttributes are attributes holding whitespace separated element
// ids, with the relationship kind each produces.
var referenceAttributes = []struct{ attr, kind string }{
	{"allocatedTo", "allocatedTo"},
	{"refinedBy", "refinedBy"},
	{"satisfiedBy", "satisfiedBy"},
	{"verifiedBy", "verifiedBy"},
	{"tracedTo", "tracedTo"},
	{"derivedFrom", "derivedFrom"},
	{"classifier", "typedBy"},
	{"represents", "represents"},
}

// descriptiveAttributes are copied onto nodes as properties. Anything not
// listed here is ignored.
var descriptiveAttributes = []string{
	"text",
	"documentation",
	"description",
	"reqId",
	"risk",
	"verifyMethod",
	"priority",
	"status",
	"visibility",
	"multiplicity",
	"isAbstract",
}

// descriptiveChildren are child elements whose text becomes a property.
var descriptiveChildren = map[string]string{
	"documentation": "documentation",
	"ownedComment":  "documentation",
	"body":          "documentation",
	"text":          "text",
}

// reservedProperties are renamed when they appear in model attributes so
// they cannot clobber node bookkeeping.
var reservedProperties = map[string]string{
	"id":    "req_id",
	"label": "model_label",
	"name":  "model_name",
}

// diagramKind returns the diagram kind of a contents element, or "".
func diagramKind(n *xmlNode) string {
	if kind, ok := diagramKinds[n.attr("stereotype")]; ok {
		return kind
	}
	if kind, ok := diagramKinds[n.xmiType()]; ok {
		return kind
	}
	return ""
}

// looksLikeDiagram reports whether an element claims to be a diagram of a
// kind the parser does not know.
func looksLikeDiagram(n *xmlNode) bool {
	return strings.HasSuffix(n.xmiType(), "Diagram") || strings.HasSuffix(n.attr("stereotype"), "Diagram")
}

// isVisual reports whether a nodes element is presentation only.
func isVisual(n *xmlNode) bool {
	return visualNodeTypes[n.xmiType()] || visualSpecificTypes[n.attr("type")]
}

// elementType resolves the type of a model element node, or "" when the
// element carries no type hint.
func elementType(n *xmlNode) string {
	if t, ok := stereotypeTypes[strings.ToLower(n.stereotype())]; ok {
		return t
	}
	if t, ok := specificTypes[n.attr("type")]; ok {
		return t
	}
	if t, ok := xmiNodeTypes[n.xmiType()]; ok {
		return t
	}
	return ""
}

// connectionKind names the relationship a connections element draws. The
// stereotype wins, then the dotted type attribute, then xmi:type.
func connectionKind(n *xmlNode) string {
	if s := n.stereotype(); s != "" {
		return s
	}
	if t := n.attr("type"); t != "" {
		if i := strings.LastIndex(t, "."); i >= 0 {
			t = t[i+1:]
		}
		if t != "" {
			return t
		}
	}
	if t := n.xmiType(); t != "" {
		t = strings.TrimSuffix(t, "_SD")
		t = strings.TrimSuffix(t, "Connection")
		if len(t) > 1 && t[0] == 'T' && t[1] >= 'A' && t[1] <= 'Z' {
			t = t[1:]
		}
		if t != "" {
			return t
		}
	}
	return "relatedTo"
}
