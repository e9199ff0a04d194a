package schema

import "fmt"

var baseTagsProperty = PropertyDef{
	Type:        "List[str]",
	Description: "Topic keywords, classification labels, or categorical tags used for organizing and filtering content within the knowledge base",
}

// builtinEntityFields returns the canonical property set for each built-in
// entity type, used when the plugin has no explicit property selections.
func builtinEntityFields(name string) map[string]PropertyDef {
	switch name {
	case "Person":
		return map[string]PropertyDef{
			"givenName":     {Type: "str", Description: "Given name or first name of the person"},
			"familyName":    {Type: "str", Description: "Family name, surname, or last name of the person"},
			"c_name":        {Type: "str", Description: "Complete legal name including all given, middle, and family names"},
			"aliases":       {Type: "List[str]", Description: "Alternative names, nicknames, professional names, or pseudonyms"},
			"identity_type": {Type: "str", Description: "Classification of the person's identity status (natural_person, national_identity, pseudonym)"},
			"birthDate":     {Type: "datetime", Description: "Date when the person was born in YYYY-MM-DD format"},
			"address":       {Type: "str", Description: "Physical address or geographic location where the person resides"},
			"email":         {Type: "str", Description: "Primary email address used for communication"},
			"worksFor":      {Type: "str", Description: "Organization where the person is currently employed"},
			"jobTitle":      {Type: "str", Description: "Current professional role, position, or title"},
			"url":           {Type: "str", Description: "Personal website or primary online presence URL"},
			"needs":         {Type: "str", Description: "Resources, skills, or support the person requires"},
			"offers":        {Type: "str", Description: "Skills, services, or value the person can provide"},
			"sameAs":        {Type: "List[str]", Description: "URIs that identify the same person on other platforms"},
		}
	case "Organization":
		return map[string]PropertyDef{
			"c_name":       {Type: "str", Description: "Complete legal name of the organization as registered"},
			"aliases":      {Type: "List[str]", Description: "Alternative names, trade names, brand names, or acronyms"},
			"org_type":     {Type: "str", Description: "Legal structure of the organization (Unregistered, DAO, LLC, Inc, 501c3, Government, etc.)"},
			"foundingDate": {Type: "datetime", Description: "Date when the organization was officially established in YYYY-MM-DD format"},
			"address":      {Type: "str", Description: "Physical headquarters or registered office address"},
			"needs":        {Type: "str", Description: "Resources, partnerships, or capabilities the organization requires"},
			"offers":       {Type: "str", Description: "Products, services, or value propositions the organization provides"},
			"url":          {Type: "str", Description: "Official website of the organization"},
			"sameAs":       {Type: "List[str]", Description: "URIs that identify the same organization on other platforms"},
		}
	case "Technology":
		return map[string]PropertyDef{
			"c_name":     {Type: "str", Description: "Complete official name of the software, framework, or programming language"},
			"aliases":    {Type: "List[str]", Description: "Alternative names, abbreviated forms, or version names"},
			"category":   {Type: "str", Description: "Primary classification of the technology (framework, language, AI model, database, API, library, platform, etc.)"},
			"opensource": {Type: "bool", Description: "Whether the technology is open source software"},
			"url":        {Type: "str", Description: "Official documentation or project page URL"},
			"sameAs":     {Type: "List[str]", Description: "URIs that identify the same technology on other platforms"},
		}
	case "Product":
		return map[string]PropertyDef{
			"c_name":        {Type: "str", Description: "Complete official name of the product or service"},
			"aliases":       {Type: "List[str]", Description: "Alternative product names, brand variations, or version names"},
			"offering_type": {Type: "str", Description: "Business model and delivery method (product, service, platform, SaaS, API, subscription, etc.)"},
			"category":      {Type: "str", Description: "Market segment or functional category of the product"},
			"url":           {Type: "str", Description: "Official product page or service portal URL"},
			"sameAs":        {Type: "List[str]", Description: "URIs that identify the same product on other platforms"},
		}
	case "Project":
		return map[string]PropertyDef{
			"c_name":       {Type: "str", Description: "Complete official name of the project or initiative"},
			"aliases":      {Type: "List[str]", Description: "Alternative project names, codenames, or working titles"},
			"project_type": {Type: "str", Description: "Classification of the project (research, development, initiative, startup, campaign, collaboration, etc.)"},
			"status":       {Type: "str", Description: "Current phase of the project lifecycle (planning, active, completed, paused, cancelled, on-hold)"},
			"needs":        {Type: "str", Description: "Resources, expertise, or support the project requires"},
			"offers":       {Type: "str", Description: "Outcomes, deliverables, or value the project will produce"},
			"url":          {Type: "str", Description: "Official project page or repository URL"},
			"sameAs":       {Type: "List[str]", Description: "URIs that identify the same project on other platforms"},
		}
	case "WebPage":
		return map[string]PropertyDef{
			"c_name":  {Type: "str", Description: "Complete title or headline of the web page"},
			"aliases": {Type: "List[str]", Description: "Alternative titles or SEO variations for the same content"},
			"url":     {Type: "str", Required: true, Description: "Complete web address where the page can be accessed"},
			"sameAs":  {Type: "List[str]", Description: "URIs of archived versions or equivalent content locations"},
		}
	case "Note":
		return map[string]PropertyDef{
			"note_type":    {Type: "str", Description: "Classification of the note's purpose (idea, analysis, reflection, meeting_notes, research, synthesis, etc.)"},
			"author":       {Type: "str", Description: "Person who created or wrote the note"},
			"created_date": {Type: "datetime", Description: "Date when the note was originally created in YYYY-MM-DD format"},
		}
	case "Article":
		return map[string]PropertyDef{
			"c_name":         {Type: "str", Description: "Complete title or headline of the published article"},
			"aliases":        {Type: "List[str]", Description: "Alternative titles or translated titles for the same article"},
			"article_type":   {Type: "str", Description: "Genre or format of the published content (essay, blog_post, analysis, tutorial, whitepaper, research_paper, etc.)"},
			"author":         {Type: "str", Description: "Person or organization credited as the primary author"},
			"published_date": {Type: "datetime", Description: "Date when the article was published in YYYY-MM-DD format"},
			"url":            {Type: "str", Description: "Web address where the article can be read"},
			"sameAs":         {Type: "List[str]", Description: "URIs of republished or equivalent content locations"},
		}
	default:
		return map[string]PropertyDef{
			"c_name":  {Type: "str", Description: fmt.Sprintf("Complete name of the %s", name)},
			"aliases": {Type: "List[str]", Description: fmt.Sprintf("Alternative names for the %s", name)},
			"sameAs":  {Type: "List[str]", Description: fmt.Sprintf("URIs that identify the same %s on other platforms", name)},
		}
	}
}

func builtinEntityDescription(name string) string {
	descriptions := map[string]string{
		"Person":       "A human actor (natural person or national identity)",
		"Organization": "An organization, company, or institution",
		"Technology":   "Technology, framework, programming language, or software",
		"Product":      "A product, service, or offering",
		"Project":      "A project, initiative, or undertaking",
		"WebPage":      "Web page, article, or documentation",
		"Note":         "Personal notes and ideas",
		"Article":      "Published articles and content",
	}
	if d, ok := descriptions[name]; ok {
		return d
	}
	return fmt.Sprintf("%s entity", name)
}

func builtinEntityNames() []string {
	return []string{"Person", "Organization", "Technology", "Product", "Project", "WebPage", "Note", "Article"}
}
