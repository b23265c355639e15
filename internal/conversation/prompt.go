package conversation

import (
	"fmt"
	"strings"

	"github.com/nyashahama/geoanalyzer/internal/ai"
	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/tools"
)

const systemPrompt = `You are an expert geospatial analyst and urban planner who is REALISTIC. ` +
	`You use geographic analysis tools to produce detailed, HONEST reports about locations. ` +
	`Be CRITICAL: if an area is desert, remote, lacks infrastructure or has extreme conditions, say so plainly ` +
	`and do NOT recommend urban development where it is not viable. ` +
	`Always cite the data sources (OpenStreetMap, Open-Elevation, Open-Meteo, OpenAQ) and the limits of the analysis. ` +
	`Put real safety and viability ahead of optimistic recommendations.`

// NewState returns the opening transcript for one location: the analyst
// persona and the request to analyse at.
func NewState(at geo.Coordinates, address string) State {
	return State{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: systemPrompt},
			{Role: ai.RoleUser, Content: userPrompt(at, address)},
		},
	}
}

func userPrompt(at geo.Coordinates, address string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyse the location at coordinates %s", at)
	if address = strings.TrimSpace(address); address != "" {
		fmt.Fprintf(&b, " (%s)", address)
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, `Use the available tools to gather real information about:
1. Nearby urban infrastructure (use %s)
2. Natural hazards in the area (use %s)
3. Air quality and nearby services where relevant (use %s and %s)

IMPORTANT: be REALISTIC and CRITICAL. If the area is desert, remote, without infrastructure, high risk or has extreme climate, state the LIMITATIONS for habitability and urban development clearly. Do not recommend urban uses when conditions are unsuitable.

Then write a professional report in Markdown covering:
- General description of the area, including geography and climate
- Available infrastructure and services, or the lack of them
- Identified risks (flood, seismic, fire)
- A REALISTIC assessment of habitability and development viability
- Recommended urban uses ONLY if viable; otherwise explain why not
- Honest final recommendations on the limitations and challenges of the area

Be specific with the data you obtained and mention the limitations wherever data is missing or conditions are unfavourable.`,
		tools.UrbanLayers, tools.NaturalRisks, tools.AirQuality, tools.NearbyPlaces)
	return b.String()
}
