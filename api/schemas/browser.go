// File: api/schemas/browser.go
package schemas

// ElementState is the evaluator's best-effort view of one page element.
type ElementState struct {
	Type           string            `json:"type"`
	Position       Point             `json:"position"`
	Dimensions     *Size             `json:"dimensions,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Text           string            `json:"text,omitempty"`
	IsInteractable bool              `json:"is_interactable"`
}

// BrowserState is an opportunistic snapshot of the page used only to rank
// candidate actions heuristically. It is never ground truth: the executor
// always re-resolves live browser state before acting.
type BrowserState struct {
	URL                  string         `json:"url"`
	Title                string         `json:"title,omitempty"`
	ActiveElement        *ElementState  `json:"active_element,omitempty"`
	InteractableElements []ElementState `json:"interactable_elements,omitempty"`
	Viewport             Size           `json:"viewport"`
}

// Screenshot is a raw capture straight off the page, in device pixels.
type Screenshot struct {
	PNG    []byte
	Width  int
	Height int
}

// MouseButton names the button for click and drag primitives.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)
