// Package catalog enumerates the service offerings selectable on the
// contact flow. The catalog is fixed at compile time and shared read-only
// by the client draft and the email renderer.
package catalog

// ServiceOption describes one selectable offering.
type ServiceOption struct {
	ID          int
	Title       string
	Description string
}

var services = []ServiceOption{
	{
		ID:          1,
		Title:       "Product Development",
		Description: "From quick prototypes to market-ready MVPs, we transform your vision into functional products tailored to your timeline.",
	},
	{
		ID:          2,
		Title:       "Cross-Platform Applications",
		Description: "Custom web and mobile applications built with a consistent experience across all devices and platforms.",
	},
	{
		ID:          3,
		Title:       "User Experience Design",
		Description: "Intuitive interfaces with scalable design systems that create memorable experiences and drive user adoption.",
	},
	{
		ID:          4,
		Title:       "Validation & Growth",
		Description: "Market validation and scalable frameworks that ensure product-market fit and sustainable business expansion.",
	},
	{
		ID:          5,
		Title:       "Product Strategy",
		Description: "Strategic roadmap planning that prioritizes features to maximize impact and accelerate time-to-market.",
	},
	{
		ID:          6,
		Title:       "Tech Consulting",
		Description: "Expert guidance on technology choices for a scalable architecture that supports your current and future needs.",
	},
}

// Services returns the fixed, ordered list of offerings. Callers must not
// mutate the returned slice; a copy is returned to enforce that.
func Services() []ServiceOption {
	out := make([]ServiceOption, len(services))
	copy(out, services)
	return out
}

// ByID returns the offering with the given id, if any.
func ByID(id int) (ServiceOption, bool) {
	for _, s := range services {
		if s.ID == id {
			return s, true
		}
	}
	return ServiceOption{}, false
}

// ByTitle returns the offering with the given title, if any.
func ByTitle(title string) (ServiceOption, bool) {
	for _, s := range services {
		if s.Title == title {
			return s, true
		}
	}
	return ServiceOption{}, false
}
