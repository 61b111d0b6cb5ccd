package seed

import (
	"context"
	"fmt"

	"resource-management-service/internal/core"
	"resource-management-service/internal/platform/logger"
)

// SampleResources returns the demo catalog: metering and connection points in Estonia and Finland.
func SampleResources() []*core.Resource {
	type char struct {
		code  string
		typ   core.CharacteristicType
		value string
	}
	build := func(t core.ResourceType, cc string, loc core.Location, chars ...char) *core.Resource {
		r := core.NewResource(t, cc, loc)
		for _, c := range chars {
			r.AddCharacteristic(&core.Characteristic{Code: c.code, Type: c.typ, Value: c.value})
		}
		return r
	}

	return []*core.Resource{
		build(core.TypeMeteringPoint, "EE",
			core.Location{StreetAddress: "Viru 1", City: "Tallinn", PostalCode: "10111", CountryCode: "EE"},
			char{"CONS1", core.CharConsumptionType, "RESIDENTIAL"},
			char{"CP001", core.CharChargingPoint, "TYPE_2"},
		),
		build(core.TypeConnectionPoint, "FI",
			core.Location{StreetAddress: "Mannerheimintie 1", City: "Helsinki", PostalCode: "00100", CountryCode: "FI"},
			char{"STAT1", core.CharConnectionPointStatus, "ACTIVE"},
			char{"CONS2", core.CharConsumptionType, "COMMERCIAL"},
		),
		build(core.TypeMeteringPoint, "FI",
			core.Location{StreetAddress: "Aleksanterinkatu 52", City: "Helsinki", PostalCode: "00100", CountryCode: "FI"},
			char{"CONS3", core.CharConsumptionType, "INDUSTRIAL"},
			char{"CP002", core.CharChargingPoint, "CCS"},
			char{"STAT2", core.CharConnectionPointStatus, "MAINTENANCE"},
		),
		build(core.TypeConnectionPoint, "EE",
			core.Location{StreetAddress: "Narva mnt 5", City: "Tallinn", PostalCode: "10117", CountryCode: "EE"},
			char{"STAT3", core.CharConnectionPointStatus, "INACTIVE"},
		),
	}
}

// Run stores the sample catalog when the repository is empty. No events are emitted.
// It returns the number of resources created.
func Run(ctx context.Context, repo core.Repository, log *logger.Logger) (int, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count resources: %w", err)
	}
	if count > 0 {
		log.Info("database already contains data, skipping sample data")
		return 0, nil
	}

	samples := SampleResources()
	for _, r := range samples {
		if err := repo.Save(ctx, r); err != nil {
			return 0, fmt.Errorf("save sample resource: %w", err)
		}
	}
	log.Info("sample data initialized", "resources", len(samples))
	return len(samples), nil
}
