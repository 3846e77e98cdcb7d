package mint

// Attribute is one ERC-1155 metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Metadata is the token document pinned before minting.
type Metadata struct {
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Image        string      `json:"image"`
	AnimationURL string      `json:"animation_url"`
	Attributes   []Attribute `json:"attributes"`
}

// ComposeMetadata builds the token document from a job's uploads.
func ComposeMetadata(job *Job) Metadata {
	return Metadata{
		Name:         job.Name,
		Description:  job.Description,
		Image:        job.ImageURI,
		AnimationURL: job.AudioURI,
		Attributes: []Attribute{
			{TraitType: "Artist", Value: job.Artist},
			{TraitType: "Genre", Value: job.Genre},
			{TraitType: "License", Value: string(job.License)},
			{TraitType: "Price", Value: job.Price.Decimal()},
			{TraitType: "Owner", Value: job.Minter},
		},
	}
}
