package fixtures

import "github.com/Veraticus/the-carbon-must-flow/internal/model"

// Factor ids of the standard catalog.
const (
	FactorDiesel         = "fx-diesel"
	FactorPetrol         = "fx-petrol"
	FactorNaturalGas     = "fx-natural-gas"
	FactorElectricityFR  = "fx-electricity-fr"
	FactorTrain          = "fx-train"
	FactorFlightShort    = "fx-flight-short"
	FactorConsultingEUR  = "fx-consulting-eur"
	FactorOfficeSupplies = "fx-office-supplies-eur"
	FactorWasteLandfill  = "fx-waste-landfill"
)

// StandardCatalog returns a small catalog with one or two factors for the
// common categories, in both physical and spend-based units.
func StandardCatalog() []model.EmissionFactor {
	return []model.EmissionFactor{
		factor(FactorDiesel, "Gazole routier", "L", 3.16, model.CategoryFuel, "diesel", "fuel"),
		factor(FactorPetrol, "Essence SP95", "L", 2.7, model.CategoryFuel, "petrol", "gasoline"),
		factor(FactorNaturalGas, "Gaz naturel", "kWh", 0.227, model.CategoryGas, "natural gas"),
		factor(FactorElectricityFR, "Électricité France", "kWh", 0.052, model.CategoryElectricity, "electricity"),
		factor(FactorTrain, "TGV", "passenger.km", 0.0029, model.CategoryBusinessTravel, "train", "rail"),
		factor(FactorFlightShort, "Vol court-courrier", "passenger.km", 0.258, model.CategoryBusinessTravel, "flight"),
		factor(FactorConsultingEUR, "Conseil", "EUR", 0.11, model.CategoryPurchasedGoods, "consulting", "services"),
		factor(FactorOfficeSupplies, "Fournitures de bureau", "EUR", 0.37, model.CategoryPurchasedGoods, "office supplies"),
		factor(FactorWasteLandfill, "Déchets mis en décharge", "t", 467, model.CategoryWaste, "landfill", "waste"),
	}
}

func factor(id, name, unit string, value float64, category model.Category, aliases ...string) model.EmissionFactor {
	return model.EmissionFactor{
		ID:            id,
		Name:          name,
		Unit:          unit,
		KgCO2ePerUnit: value,
		Category:      category,
		Scope:         category.Scope(),
		Country:       "FR",
		Source:        "fixture",
		Aliases:       aliases,
		Active:        true,
	}
}
