package issue

// Classifier categories.
const (
	CategoryEngine       = "Engine"
	CategoryBrakes       = "Brakes"
	CategoryElectrical   = "Electrical"
	CategoryACHeating    = "AC/Heating"
	CategorySuspension   = "Suspension"
	CategoryTransmission = "Transmission"
)

var classifierCategories = []string{
	CategoryEngine,
	CategoryBrakes,
	CategoryElectrical,
	CategoryACHeating,
	CategorySuspension,
	CategoryTransmission,
}

var commonIssueTags = []string{
	"Engine noise",
	"Brake problems",
	"Electrical issues",
	"AC not working",
	"Suspension noise",
	"Transmission problems",
	"Battery issues",
	"Tire wear",
	"Oil leak",
	"Overheating",
}

// Categories returns the six labels a classifier may assign.
func Categories() []string {
	return append([]string(nil), classifierCategories...)
}

// CommonTags returns the ten quick tags a user can attach to a draft.
func CommonTags() []string {
	return append([]string(nil), commonIssueTags...)
}

// IsCommonTag reports whether tag is one of the quick tags.
func IsCommonTag(tag string) bool {
	for _, item := range commonIssueTags {
		if item == tag {
			return true
		}
	}
	return false
}

// IsCategory reports whether label is a known classifier category.
func IsCategory(label string) bool {
	for _, item := range classifierCategories {
		if item == label {
			return true
		}
	}
	return false
}
