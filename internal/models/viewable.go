package models

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrUnknownViewable = errors.New("unknown viewable type")

// ViewableType discriminates what a page view points at.
type ViewableType int

const (
	ViewableBlog ViewableType = iota + 1
	ViewablePost
)

// Morph classes are stored verbatim in viewable_type columns and cache keys.
const (
	MorphClassBlog = `App\Models\Blog`
	MorphClassPost = `App\Models\Post`
)

var morphClasses = map[ViewableType]string{
	ViewableBlog: MorphClassBlog,
	ViewablePost: MorphClassPost,
}

var routeNames = map[string]ViewableType{
	"blog":  ViewableBlog,
	"blogs": ViewableBlog,
	"post":  ViewablePost,
	"posts": ViewablePost,
}

// MorphClass returns the stored discriminator value.
func (t ViewableType) MorphClass() string {
	return morphClasses[t]
}

func (t ViewableType) String() string {
	switch t {
	case ViewableBlog:
		return "blog"
	case ViewablePost:
		return "post"
	default:
		return "unknown"
	}
}

// ParseViewableType accepts a route name ("blog", "posts") or a morph class.
func ParseViewableType(s string) (ViewableType, error) {
	if t, ok := routeNames[s]; ok {
		return t, nil
	}
	for t, class := range morphClasses {
		if class == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownViewable, s)
}

// Viewable is an entity that accrues page views: a blog landing page or a post.
type Viewable struct {
	Type ViewableType
	ID   int64
}

func NewBlog(id int64) Viewable { return Viewable{Type: ViewableBlog, ID: id} }

func NewPost(id int64) Viewable { return Viewable{Type: ViewablePost, ID: id} }

// ParseViewable builds a viewable from route params.
func ParseViewable(typ, id string) (Viewable, error) {
	t, err := ParseViewableType(typ)
	if err != nil {
		return Viewable{}, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return Viewable{}, fmt.Errorf("invalid viewable id %q", id)
	}
	return Viewable{Type: t, ID: n}, nil
}

func (v Viewable) MorphClass() string { return v.Type.MorphClass() }

func (v Viewable) String() string {
	return v.MorphClass() + ":" + strconv.FormatInt(v.ID, 10)
}
