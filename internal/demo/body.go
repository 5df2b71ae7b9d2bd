package demo

// Body is the full structured demo document. The persistence layer treats it
// as an opaque serializable blob beyond requiring lossless JSON round-trips;
// the shape is defined here so NewEmptyBody can produce the canonical seed
// state for newly created documents.
type Body struct {
	Overview     Overview          `json:"overview"`
	Requirements Requirements      `json:"requirements"`
	FromTo       FromTo            `json:"fromTo"`
	Storyboard   []StoryboardPanel `json:"storyboard"`
	Outline      []OutlineBeat     `json:"outline"`
	Grid         []GridRow         `json:"grid"`
	Watch        Watch             `json:"watch"`
}

// Overview is the takeaway-post step: headline, thumbnail and poster card.
type Overview struct {
	Headline                string  `json:"headline"`
	ThumbnailImage          string  `json:"thumbnailImage"`
	GradientID              string  `json:"gradientId"`
	ImageOffset             Offset  `json:"imageOffset"`
	SocialPostText          string  `json:"socialPostText"`
	PosterName              string  `json:"posterName"`
	PosterTitle             string  `json:"posterTitle"`
	PosterAvatar            string  `json:"posterAvatar"`
	PosterAvatarOffset      Offset  `json:"posterAvatarOffset"`
	PosterAvatarZoom        float64 `json:"posterAvatarZoom"`
	PosterAvatarIsLandscape bool    `json:"posterAvatarIsLandscape"`
}

// Offset is a percentage crop position within an image.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Requirements is the requirements step: a goal line plus checklist items.
type Requirements struct {
	Items []RequirementItem `json:"items"`
	Goal  string            `json:"goal"`
}

// RequirementItem statuses cycle pending -> completed -> rejected.
type RequirementItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// FromTo is the before/after narrative step.
type FromTo struct {
	From Panel `json:"from"`
	To   Panel `json:"to"`
}

// Panel is an image plus caption.
type Panel struct {
	Image string `json:"image"`
	Text  string `json:"text"`
}

// StoryboardPanel is one labeled panel of the storyboard step.
type StoryboardPanel struct {
	Label string `json:"label"`
	Image string `json:"image"`
	Text  string `json:"text"`
}

// OutlineBeat is one ordered beat of the outline step.
type OutlineBeat struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// GridRow is one row of the shot-list grid step.
type GridRow struct {
	ID         string `json:"id"`
	Screenshot string `json:"screenshot"`
	TalkTrack  string `json:"talkTrack"`
	ClickPath  string `json:"clickPath"`
}

// Watch is the video-embed step.
type Watch struct {
	DriveURL string `json:"driveUrl"`
	EmbedURL string `json:"embedUrl"`
}

// DefaultGradientID is the thumbnail gradient assigned to new documents.
const DefaultGradientID = "sf-brand"

var storyboardSeed = []StoryboardPanel{
	{Label: "Context", Text: "Here you're looking at..."},
	{Label: "Challenge", Text: "But the challenge is..."},
	{Label: "Solution 1", Text: "Thankfully..."},
	{Label: "Solution 2", Text: "Because of that..."},
	{Label: "Solution 3", Text: "Because of that..."},
	{Label: "Solution 4", Text: "Because of that..."},
	{Label: "Solution 5", Text: "Because of that."},
	{Label: "Outcome", Text: "Until finally..."},
}

var outlineSeed = []string{
	"In this demo I'll show you how...",
	"Here you're looking at...",
	"But the challenge is...",
	"Thankfully...",
	"Because of that...",
	"Because of that...",
	"Because of that...",
	"Because of that.",
	"Until finally...",
	"Now you've seen how...",
}

// NewEmptyBody returns the canonical empty document shape: every step section
// present with its zero-value structure. This is the seed state for every
// newly created document regardless of backend.
func NewEmptyBody(idgen IDGenerator) *Body {
	storyboard := make([]StoryboardPanel, len(storyboardSeed))
	copy(storyboard, storyboardSeed)

	outline := make([]OutlineBeat, len(outlineSeed))
	for i, text := range outlineSeed {
		outline[i] = OutlineBeat{ID: idgen.New(), Text: text, Order: i}
	}

	return &Body{
		Overview: Overview{
			GradientID:              DefaultGradientID,
			ImageOffset:             Offset{X: 50, Y: 50},
			PosterAvatarOffset:      Offset{X: 50, Y: 50},
			PosterAvatarZoom:        1,
			PosterAvatarIsLandscape: true,
		},
		Requirements: Requirements{Items: []RequirementItem{}},
		Storyboard:   storyboard,
		Outline:      outline,
		Grid:         []GridRow{},
	}
}
