package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/zjrosen/regd/internal/plugin"
)

// MediaTypeMatcher matches requests whose resource has a given media type.
type MediaTypeMatcher struct {
	mediaType string
	invert    bool
}

// NewMediaTypeMatcher reads the "mediaType" and optional "invert"
// properties.
func NewMediaTypeMatcher(props plugin.Properties) (*MediaTypeMatcher, error) {
	mt, _ := props.Get("mediaType")
	if mt == "" {
		return nil, errors.New("mediaType property is required")
	}
	m := &MediaTypeMatcher{mediaType: mt}
	if v, ok := props.Get("invert"); ok && v != "" {
		invert, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		m.invert = invert
	}
	return m, nil
}

// Name identifies the filter in listings.
func (m *MediaTypeMatcher) Name() string {
	return KeyMediaTypeMatcher
}

// Matches implements Filter. Requests without a resource never match.
func (m *MediaTypeMatcher) Matches(rc *RequestContext) (bool, error) {
	if rc.Resource == nil {
		return false, nil
	}
	return m.invert != strings.EqualFold(rc.Resource.MediaType, m.mediaType), nil
}
