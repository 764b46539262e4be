package classification

import "github.com/Veraticus/the-carbon-must-flow/internal/model"

// DefaultPatterns returns the built-in pattern table in evaluation order.
// Brand patterns precede the generic vocabulary of the same category.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Fuel
		{Name: "fuel brands", Category: model.CategoryFuel, Regex: `\b(SHELL|TOTAL|ESSO|BP|ARAL|AGIP|ENI|AVIA)\b`},
		{Name: "fuel stations", Category: model.CategoryFuel, Regex: `\b(TANKSTELLE|STATION SERVICE|GAS STATION|PETROL|CARBURANT)\b`},

		// Electricity
		{Name: "electricity suppliers", Category: model.CategoryElectricity, Regex: `\b(EDF|ENGIE|VATTENFALL|E\.ON|RWE|ENBW|DIRECT ENERGIE)\b`},
		{Name: "electricity terms", Category: model.CategoryElectricity, Regex: `\b(ELECTRICITE|STROM|ENERGIE|ENERGY)\b`},

		// Natural gas
		{Name: "gas suppliers", Category: model.CategoryGas, Regex: `\b(GRDF|ENGIE GAZ|GAS NATURAL)\b`},
		{Name: "gas terms", Category: model.CategoryGas, Regex: `\b(GAZ NATUREL|ERDGAS|NATURAL GAS)\b`},

		// Air travel
		{Name: "airlines", Category: model.CategoryBusinessTravel, Regex: `\b(AIR FRANCE|LUFTHANSA|EASYJET|RYANAIR|VUELING|KLM|BRITISH AIRWAYS)\b`},
		{Name: "flights", Category: model.CategoryBusinessTravel, Regex: `\b(AIRLINE|FLUG|VOL|FLIGHT|BILLET AVION)\b`},

		// Rail
		{Name: "rail operators", Category: model.CategoryBusinessTravel, Regex: `\b(SNCF|DB BAHN|DEUTSCHE BAHN|THALYS|EUROSTAR|OUIGO)\b`},
		{Name: "rail terms", Category: model.CategoryBusinessTravel, Regex: `\b(TGV|ICE|TRAIN|BAHN)\b`},

		// Lodging
		{Name: "hotel chains", Category: model.CategoryBusinessTravel, Regex: `\b(BOOKING|HOTELS\.COM|EXPEDIA|ACCOR|MARRIOTT|HILTON|NOVOTEL|IBIS)\b`},
		{Name: "lodging", Category: model.CategoryBusinessTravel, Regex: `\b(HOTEL|HOSTEL|LODGING|HEBERGEMENT)\b`},

		// Ground transport
		{Name: "taxi and ride hailing", Category: model.CategoryBusinessTravel, Regex: `\b(UBER|BOLT|FREENOW|KAPTEN|LYFT|TAXI|G7)\b`},

		// Cloud and software
		{Name: "cloud providers", Category: model.CategoryPurchasedGoods, Regex: `\b(AWS|AMAZON WEB SERVICES|GOOGLE CLOUD|AZURE|MICROSOFT AZURE)\b`},
		{Name: "hosting", Category: model.CategoryPurchasedGoods, Regex: `\b(DIGITALOCEAN|OVH|SCALEWAY|HEROKU|VERCEL)\b`},
		{Name: "saas tools", Category: model.CategoryPurchasedGoods, Regex: `\b(GITHUB|GITLAB|ATLASSIAN|SLACK|ZOOM|NOTION|FIGMA|ADOBE)\b`},
		{Name: "office suites", Category: model.CategoryPurchasedGoods, Regex: `\b(MICROSOFT 365|GOOGLE WORKSPACE|SALESFORCE)\b`},

		// Office supplies
		{Name: "office retailers", Category: model.CategoryPurchasedGoods, Regex: `\b(AMAZON|STAPLES|OFFICE DEPOT|LYRECO|VIKING|BRUNEAU)\b`},
		{Name: "office supplies", Category: model.CategoryPurchasedGoods, Regex: `\b(FOURNITURES|BUREAU|OFFICE SUPPLIES)\b`},

		// Food
		{Name: "restaurants", Category: model.CategoryPurchasedGoods, Regex: `\b(RESTAURANT|CAFE|BRASSERIE|BISTRO|PIZZERIA)\b`},
		{Name: "fast food", Category: model.CategoryPurchasedGoods, Regex: `\b(MCDONALDS|BURGER KING|KFC|STARBUCKS|SUBWAY|DOMINOS)\b`},

		// Telecom
		{Name: "telecom operators", Category: model.CategoryPurchasedGoods, Regex: `\b(ORANGE|SFR|BOUYGUES|FREE|O2|VODAFONE|TELEKOM)\b`},
		{Name: "telecom terms", Category: model.CategoryPurchasedGoods, Regex: `\b(TELEFON|TELEPHONE|MOBILE|INTERNET)\b`},

		// Insurance
		{Name: "insurers", Category: model.CategoryPurchasedGoods, Regex: `\b(AXA|ALLIANZ|GENERALI|MAIF|MACIF|MATMUT|GROUPAMA)\b`},
		{Name: "insurance terms", Category: model.CategoryPurchasedGoods, Regex: `\b(ASSURANCE|VERSICHERUNG|INSURANCE)\b`},

		// Rent
		{Name: "rent", Category: model.CategoryPurchasedGoods, Regex: `\b(LOYER|MIETE|RENT|LOCATION)\b`},

		// No emissions
		{Name: "payroll", Category: model.CategoryExcluded, Regex: `\b(SALAIRE|GEHALT|SALARY|PAIE|LOHN|PAYROLL)\b`},
		{Name: "taxes", Category: model.CategoryExcluded, Regex: `\b(URSSAF|DGFIP|IMPOTS|FINANZAMT|TAX PAYMENT)\b`},
		{Name: "internal transfers", Category: model.CategoryExcluded, Regex: `\b(VIREMENT INTERNE|VIR INTERNE|INTERNAL TRANSFER|UMBUCHUNG)\b`},
	}
}
