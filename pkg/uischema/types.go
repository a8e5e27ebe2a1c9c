package uischema

// Widget whitelist. Tags are exact, case-sensitive, PascalCase; anything else
// rejects the whole payload.
const (
	TypeInfoCard   = "InfoCard"
	TypeActionList = "ActionList"
	TypeMapView    = "MapView"
	TypeWebView    = "WebView"
)

type UIPayload struct {
	Components []Component `json:"components"`
}

// Component is one validated variant of the closed widget set.
type Component interface {
	ComponentType() string
	WidgetID() string
}

type InfoCard struct {
	Type      string `json:"type" validate:"required,eq=InfoCard"`
	WidgetId  string `json:"widget_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	ContentMd string `json:"content_md" validate:"required"`
	Style     string `json:"style,omitempty" validate:"omitempty,oneof=standard highlight warning"`
}

func (c InfoCard) ComponentType() string { return TypeInfoCard }
func (c InfoCard) WidgetID() string      { return c.WidgetId }

type Action struct {
	Type    string                 `json:"type" validate:"required,oneof=deep_link api_call toast"`
	URL     string                 `json:"url,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type ActionItem struct {
	ID       string  `json:"id" validate:"required"`
	Title    string  `json:"title" validate:"required"`
	Subtitle string  `json:"subtitle,omitempty"`
	Action   *Action `json:"action" validate:"required"`
}

type ActionList struct {
	Type     string       `json:"type" validate:"required,eq=ActionList"`
	WidgetId string       `json:"widget_id" validate:"required"`
	Title    string       `json:"title" validate:"required"`
	Items    []ActionItem `json:"items" validate:"required,dive"`
}

func (c ActionList) ComponentType() string { return TypeActionList }
func (c ActionList) WidgetID() string      { return c.WidgetId }

type LatLng struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

type Marker struct {
	Lat   *float64 `json:"lat" validate:"required"`
	Lng   *float64 `json:"lng" validate:"required"`
	Title string   `json:"title,omitempty"`
}

type MapView struct {
	Type     string   `json:"type" validate:"required,eq=MapView"`
	WidgetId string   `json:"widget_id" validate:"required"`
	Center   *LatLng  `json:"center" validate:"required"`
	Zoom     *float64 `json:"zoom,omitempty"`
	Markers  []Marker `json:"markers,omitempty" validate:"omitempty,dive"`
}

func (c MapView) ComponentType() string { return TypeMapView }
func (c MapView) WidgetID() string      { return c.WidgetId }

type WebView struct {
	Type     string `json:"type" validate:"required,eq=WebView"`
	WidgetId string `json:"widget_id" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Title    string `json:"title,omitempty"`
}

func (c WebView) ComponentType() string { return TypeWebView }
func (c WebView) WidgetID() string      { return c.WidgetId }

const (
	DefaultZoom  = 14.0
	DefaultStyle = "standard"
)
