package profile

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	svcErr "github.com/oggyb/scene-match/internal/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func v() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and that the scene variant is present.
// It runs at the repository boundary so the scorer never sees malformed data.
func Validate(p Profile) error {
	if err := v().Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return svcErr.Validation("profile %s: field %s failed %q", p.CardID, verrs[0].Namespace(), verrs[0].Tag())
		}
		return svcErr.Validation("profile %s: %v", p.CardID, err)
	}

	var set int
	if p.Housing != nil {
		set++
	}
	if p.Dating != nil {
		set++
	}
	if p.Activity != nil {
		set++
	}
	if set != 1 {
		return svcErr.Validation("profile %s: expected exactly one scene variant, got %d", p.CardID, set)
	}

	switch p.Scene {
	case SceneHousing:
		if p.Housing == nil {
			return svcErr.Validation("profile %s: housing attributes missing", p.CardID)
		}
	case SceneDating:
		if p.Dating == nil {
			return svcErr.Validation("profile %s: dating attributes missing", p.CardID)
		}
	case SceneActivity:
		if p.Activity == nil {
			return svcErr.Validation("profile %s: activity attributes missing", p.CardID)
		}
		w := p.Activity.Window
		if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
			return svcErr.Validation("profile %s: activity window ends before it starts", p.CardID)
		}
	}
	return nil
}

// MarshalAttributes encodes the scene variant of p.
func MarshalAttributes(p Profile) ([]byte, error) {
	switch p.Scene {
	case SceneHousing:
		return json.Marshal(p.Housing)
	case SceneDating:
		return json.Marshal(p.Dating)
	case SceneActivity:
		return json.Marshal(p.Activity)
	}
	return nil, svcErr.Validation("unknown scene %q", p.Scene)
}

// UnmarshalAttributes decodes raw attributes into the variant selected by p.Scene.
func UnmarshalAttributes(p *Profile, raw []byte) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var err error
	switch p.Scene {
	case SceneHousing:
		p.Housing = &Housing{}
		err = json.Unmarshal(raw, p.Housing)
	case SceneDating:
		p.Dating = &Dating{}
		err = json.Unmarshal(raw, p.Dating)
	case SceneActivity:
		p.Activity = &Activity{}
		err = json.Unmarshal(raw, p.Activity)
	default:
		return svcErr.Validation("unknown scene %q", p.Scene)
	}
	if err != nil {
		return svcErr.Validation("profile %s: malformed attributes: %v", p.CardID, err)
	}
	return nil
}
