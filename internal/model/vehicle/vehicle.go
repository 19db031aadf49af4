package vehicle

// Vehicle describes one model in the owner's catalog.
type Vehicle struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// Seed provides the default Tata model line-up.
func Seed() []Vehicle {
	return []Vehicle{
		{ID: "tiago", Name: "Tiago", Category: "Hatchback"},
		{ID: "tigor", Name: "Tigor", Category: "Sedan"},
		{ID: "nexon", Name: "Nexon", Category: "Compact SUV"},
		{ID: "harrier", Name: "Harrier", Category: "SUV"},
		{ID: "safari", Name: "Safari", Category: "SUV"},
		{ID: "punch", Name: "Punch", Category: "Micro SUV"},
		{ID: "altroz", Name: "Altroz", Category: "Premium Hatchback"},
		{ID: "nexon-ev", Name: "Nexon EV", Category: "Electric SUV"},
		{ID: "tigor-ev", Name: "Tigor EV", Category: "Electric Sedan"},
		{ID: "tiago-ev", Name: "Tiago EV", Category: "Electric Hatchback"},
	}
}
