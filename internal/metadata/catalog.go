package metadata

func idField() Field {
	return Field{Name: PrimaryKey, Label: "ID", Kind: KindString, Filterable: true}
}

func slugField() Field {
	return Field{Name: "slug", Label: "Slug", Kind: KindString, Filterable: true, Required: true}
}

func featuredField() Field {
	return Field{Name: "featured", Label: "Featured", Kind: KindBoolean, Filterable: true, Editable: true}
}

// Catalog returns fresh definitions of every supported entity type.
func Catalog() []*Entity {
	return []*Entity{
		{
			Type:         EntityEvent,
			Label:        "Events",
			Table:        "events",
			NaturalKey:   "slug",
			DisplayField: "name",
			OwnerColumn:  "created_by",
			DefaultOrder: []OrderClause{{Field: "start_date", Desc: true}, {Field: "name"}},
			Fields: []Field{
				idField(),
				{Name: "name", Label: "Name", Kind: KindString, Filterable: true, Editable: true, Required: true},
				slugField(),
				{Name: "city", Label: "City", Kind: KindString, Filterable: true, Editable: true},
				{Name: "country", Label: "Country", Kind: KindString, Filterable: true, Editable: true},
				{Name: "status", Label: "Status", Kind: KindEnum, EnumValues: []string{"draft", "published", "cancelled"}, Filterable: true, Editable: true},
				featuredField(),
				{Name: "start_date", Label: "Start date", Kind: KindDate, Filterable: true, Editable: true},
				{
					Name: "organizer_id", Label: "Organizer", Kind: KindRelation,
					RelationTarget: EntityOrganizer, Multiplicity: One, DisplayAs: "organizer_name",
					Filterable: true, Editable: true,
				},
				{
					Name: "series", Label: "Series", Kind: KindRelation,
					RelationTarget: EntitySeries, Multiplicity: Many,
					Filterable: true, Editable: true,
					Join: &JoinTable{Table: "event_series", SourceKey: "event_id", TargetKey: "series_id"},
				},
			},
		},
		{
			Type:         EntityCompetition,
			Label:        "Competitions",
			Table:        "competitions",
			NaturalKey:   "slug",
			DisplayField: "name",
			DefaultOrder: []OrderClause{{Field: "name"}},
			Fields: []Field{
				idField(),
				{Name: "name", Label: "Name", Kind: KindString, Filterable: true, Editable: true, Required: true},
				slugField(),
				{Name: "sport", Label: "Sport", Kind: KindEnum, EnumValues: []string{"running", "trail", "cycling", "triathlon", "swimming", "other"}, Filterable: true, Editable: true},
				{Name: "distance_km", Label: "Distance (km)", Kind: KindNumber, Filterable: true, Editable: true},
				featuredField(),
				{
					Name: "event_id", Label: "Event", Kind: KindRelation,
					RelationTarget: EntityEvent, Multiplicity: One, DisplayAs: "event_name",
					Filterable: true, Editable: true,
				},
			},
		},
		{
			Type:         EntityEdition,
			Label:        "Editions",
			Table:        "editions",
			DisplayField: "year",
			DefaultOrder: []OrderClause{{Field: "year", Desc: true}},
			Fields: []Field{
				idField(),
				{Name: "year", Label: "Year", Kind: KindNumber, Filterable: true, Editable: true, Required: true},
				{Name: "start_date", Label: "Start date", Kind: KindDate, Filterable: true, Editable: true},
				{Name: "status", Label: "Status", Kind: KindEnum, EnumValues: []string{"scheduled", "open", "closed", "cancelled"}, Filterable: true, Editable: true},
				{Name: "participants", Label: "Participants", Kind: KindNumber, Filterable: true, Editable: true},
				{
					Name: "competition_id", Label: "Competition", Kind: KindRelation,
					RelationTarget: EntityCompetition, Multiplicity: One, DisplayAs: "competition_name",
					Filterable: true, Required: true,
				},
			},
		},
		{
			Type:         EntityOrganizer,
			Label:        "Organizers",
			Table:        "organizers",
			NaturalKey:   "slug",
			DisplayField: "name",
			DefaultOrder: []OrderClause{{Field: "name"}},
			Fields: []Field{
				idField(),
				{Name: "name", Label: "Name", Kind: KindString, Filterable: true, Editable: true, Required: true},
				slugField(),
				{Name: "country", Label: "Country", Kind: KindString, Filterable: true, Editable: true},
				{Name: "website", Label: "Website", Kind: KindString, Editable: true},
				{Name: "verified", Label: "Verified", Kind: KindBoolean, Filterable: true, Editable: true},
			},
		},
		{
			Type:         EntitySeries,
			Label:        "Series",
			Table:        "series",
			NaturalKey:   "slug",
			DisplayField: "name",
			DefaultOrder: []OrderClause{{Field: "name"}},
			Fields: []Field{
				idField(),
				{Name: "name", Label: "Name", Kind: KindString, Filterable: true, Editable: true, Required: true},
				slugField(),
				{Name: "description", Label: "Description", Kind: KindString, Editable: true},
				{Name: "active", Label: "Active", Kind: KindBoolean, Filterable: true, Editable: true},
			},
		},
		{
			Type:         EntityService,
			Label:        "Services",
			Table:        "services",
			NaturalKey:   "slug",
			DisplayField: "name",
			DefaultOrder: []OrderClause{{Field: "name"}},
			Fields: []Field{
				idField(),
				{Name: "name", Label: "Name", Kind: KindString, Filterable: true, Editable: true, Required: true},
				slugField(),
				{Name: "category", Label: "Category", Kind: KindEnum, EnumValues: []string{"timing", "photography", "medical", "logistics", "other"}, Filterable: true, Editable: true},
				{Name: "price", Label: "Price", Kind: KindNumber, Filterable: true, Editable: true},
				featuredField(),
				{
					Name: "events", Label: "Events", Kind: KindRelation,
					RelationTarget: EntityEvent, Multiplicity: Many,
					Filterable: true, Editable: true,
					Join: &JoinTable{Table: "service_events", SourceKey: "service_id", TargetKey: "event_id"},
				},
			},
		},
		{
			Type:         EntityPost,
			Label:        "Posts",
			Table:        "posts",
			NaturalKey:   "slug",
			DisplayField: "title",
			OwnerColumn:  "created_by",
			DefaultOrder: []OrderClause{{Field: "published_at", Desc: true}},
			Fields: []Field{
				idField(),
				{Name: "title", Label: "Title", Kind: KindString, Filterable: true, Editable: true, Required: true},
				slugField(),
				{Name: "status", Label: "Status", Kind: KindEnum, EnumValues: []string{"draft", "published", "archived"}, Filterable: true, Editable: true},
				featuredField(),
				{Name: "published_at", Label: "Published", Kind: KindDate, Filterable: true, Editable: true},
				{Name: "body", Label: "Body", Kind: KindString, Editable: true},
				{
					Name: "events", Label: "Events", Kind: KindRelation,
					RelationTarget: EntityEvent, Multiplicity: Many,
					Filterable: true, Editable: true,
					Join: &JoinTable{Table: "post_events", SourceKey: "post_id", TargetKey: "event_id"},
				},
			},
		},
	}
}
