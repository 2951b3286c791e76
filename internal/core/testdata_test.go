package core

// testCollection is a products-like definition shared by the package tests.
func testCollection() CollectionDefinition {
	return CollectionDefinition{
		Info: CollectionInfo{
			Key:        "widgets",
			Group:      "Catalog",
			Label:      "Widgets",
			IDColumn:   "id",
			NameColumn: "name",
			Filters:    []string{"status", "groupId"},
		},
		FieldSpecs: []FieldSpec{
			{Name: "name", Type: FieldText, Required: true},
			{Name: "status", Type: FieldEnum, Required: true, EnumValues: []string{"active", "inactive"}},
			{Name: "groupId", DBColumn: "group_id", Type: FieldRef},
			{Name: "launchDate", DBColumn: "launch_date", Type: FieldDate},
			{Name: "price", Type: FieldPrice},
			{Name: "protected", Type: FieldBool, ReadOnly: true},
		},
	}
}
