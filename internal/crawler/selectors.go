package crawler

// Selectors lists, per page element, the probes tried in order. Entries
// starting with "/" are XPath, the rest CSS.
type Selectors struct {
	Username      []string `json:"username"`
	Password      []string `json:"password"`
	Submit        []string `json:"submit"`
	DocumentsLink []string `json:"documents_link"`
	RemoveFilter  []string `json:"remove_filter"`
	Items         []string `json:"items"`
	LoadMore      []string `json:"load_more"`
	Download      []string `json:"download"`
	Back          []string `json:"back"`
}

// DefaultSelectors matches the Oracle HCM self-service portal.
func DefaultSelectors() Selectors {
	return Selectors{
		Username: []string{
			`input[type="text"][name*="username" i]`,
			`input[type="text"][name*="user" i]`,
			`input[type="email"]`,
			`input#userid`,
			`input#username`,
			`input[name="ssousername"]`,
			`input[autocomplete="username"]`,
		},
		Password: []string{
			`input[type="password"]`,
			`input[name="password"]`,
			`input#password`,
			`input[name="ssopassword"]`,
		},
		Submit: []string{
			`button[type="submit"]`,
			`input[type="submit"]`,
			`//button[contains(., "Sign In")]`,
			`//button[contains(., "Iniciar")]`,
			`//button[contains(., "Login")]`,
		},
		DocumentsLink: []string{
			`//a[contains(., "Registros de documentos")]`,
			`//span[contains(., "Registros de documentos")]`,
			`//*[normalize-space(text())="Registros de documentos"]`,
		},
		RemoveFilter: []string{
			`a[title="Eliminar filtro: Nómina"]`,
			`a[title*="Eliminar filtro: Nómina"]`,
			`//span[contains(., "Nómina")]/following-sibling::a[1]`,
		},
		Items: []string{
			`a[title="Ver más detalles"]`,
			`img[alt="Ver más detalles"]`,
			`img[src*="func_glasses"]`,
		},
		LoadMore: []string{
			`//a[contains(., "Cargar Más Elementos")]`,
			`//a[contains(., "Load More")]`,
			`a[id*="fchmrlnk"]`,
			`//button[contains(., "Cargar Más")]`,
		},
		Download: []string{
			`img[src*="download"]`,
		},
		Back: []string{
			`a[title="Atrás"]`,
			`a[class*="svg-universalPanel"]`,
		},
	}
}

// Merge returns s with every empty list taken from fallback.
func (s Selectors) Merge(fallback Selectors) Selectors {
	pick := func(a, b []string) []string {
		if len(a) > 0 {
			return a
		}
		return b
	}
	return Selectors{
		Username:      pick(s.Username, fallback.Username),
		Password:      pick(s.Password, fallback.Password),
		Submit:        pick(s.Submit, fallback.Submit),
		DocumentsLink: pick(s.DocumentsLink, fallback.DocumentsLink),
		RemoveFilter:  pick(s.RemoveFilter, fallback.RemoveFilter),
		Items:         pick(s.Items, fallback.Items),
		LoadMore:      pick(s.LoadMore, fallback.LoadMore),
		Download:      pick(s.Download, fallback.Download),
		Back:          pick(s.Back, fallback.Back),
	}
}
