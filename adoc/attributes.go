package adoc

import (
	"regexp"
	"strings"
)

// reAttributeReference matches {name}, {set:name:value}, {counter:name:seed}
// and their escaped forms.
var reAttributeReference = regexp.MustCompile(`(\\)?\{(\w[\w-]*|(set|counter2?):[^}]*?)(\\)?\}`)

// subAttributes replaces attribute references in text, line by line, so
// that a drop-line policy only removes the line holding the reference.
// missing overrides the attribute-missing policy when not empty. It returns
// false when every line was dropped.
func (d *Document) subAttributes(text string, missing string) (string, bool) {

	if !strings.Contains(text, "{") {
		return text, true
	}

	if len(missing) == 0 {
		missing = d.AttributeOr("attribute-missing", d.opts.AttributeMissing)
	}
	undefined := d.AttributeOr("attribute-undefined", d.opts.AttributeUndefined)

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		if !strings.Contains(line, "{") {
			kept = append(kept, line)
			continue
		}

		reject, rejectIfEmpty := false, false

		line = replaceAllSubmatchFunc(reAttributeReference, line, func(m []string) string {
			if reject {
				return ""
			}

			// Escaped references lose the backslash
			if m[1] == `\` || m[4] == `\` {
				return "{" + m[2] + "}"
			}

			if len(m[3]) > 0 {
				args := strings.SplitN(m[2], ":", 3)[1:]
				switch m[3] {
				case "set":
					name := args[0]
					value := ""
					if len(args) > 1 {
						value = args[1]
					}
					if !d.storeAttribute(name, value) && undefined == MissingDropLine {
						reject = true
						return ""
					}
					rejectIfEmpty = true
					return ""
				case "counter2":
					d.Counter(args[0], argAt(args, 1))
					rejectIfEmpty = true
					return ""
				default:
					return d.Counter(args[0], argAt(args, 1))
				}
			}

			key := strings.ToLower(m[2])
			if v, ok := d.attributes[key]; ok {
				return v
			}
			if v, ok := intrinsicAttributes[key]; ok {
				return v
			}

			switch missing {
			case MissingDrop:
				rejectIfEmpty = true
				return ""
			case MissingDropLine:
				d.log.Infow("dropping line containing reference to missing attribute", "attribute", key)
				reject = true
				return ""
			case MissingWarn:
				d.log.Warnw("skipping reference to missing attribute", "attribute", key)
			}
			return m[0]
		})

		switch {
		case reject:
		case rejectIfEmpty && len(line) == 0:
		default:
			kept = append(kept, line)
		}
	}

	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "\n"), true
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// storeAttribute handles name or name! from an inline {set:} or an entry.
// It returns false when the attribute ends up undefined.
func (d *Document) storeAttribute(name, value string) bool {
	switch {
	case strings.HasSuffix(name, "!"):
		d.DeleteAttribute(strings.TrimSuffix(name, "!"))
		return false
	case strings.HasPrefix(name, "!"):
		d.DeleteAttribute(name[1:])
		return false
	}
	d.SetAttribute(name, value)
	return true
}
