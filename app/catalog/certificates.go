package catalog

type Certificate string

const (
	CertificateGOTS               Certificate = "GOTS"
	CertificateOekoTex100         Certificate = "OEKO_TEX_STANDARD_100"
	CertificateOekoTexMadeInGreen Certificate = "OEKO_TEX_MADE_IN_GREEN"
	CertificateFairtradeCotton    Certificate = "FAIRTRADE_COTTON"
	CertificateGRS                Certificate = "GLOBAL_RECYCLED_STANDARD"
	CertificateBluesign           Certificate = "BLUESIGN"
	CertificateEUEcolabel         Certificate = "EU_ECOLABEL"
	CertificateFSC                Certificate = "FSC"
	CertificateCradleToCradle     Certificate = "CRADLE_TO_CRADLE"
	CertificateRWS                Certificate = "RESPONSIBLE_WOOL_STANDARD"
	CertificateBetterCotton       Certificate = "BETTER_COTTON"
	CertificateGruenerKnopf       Certificate = "GRUENER_KNOPF"
)

var certificates = lookup(
	CertificateGOTS, CertificateOekoTex100, CertificateOekoTexMadeInGreen,
	CertificateFairtradeCotton, CertificateGRS, CertificateBluesign, CertificateEUEcolabel,
	CertificateFSC, CertificateCradleToCradle, CertificateRWS, CertificateBetterCotton,
	CertificateGruenerKnopf,
)

// Label spellings seen on merchant pages.
var certificateAliases = map[string]Certificate{
	Key("Global Organic Textile Standard"): CertificateGOTS,
	Key("OEKO-TEX"):                        CertificateOekoTex100,
	Key("OEKO-TEX Standard 100"):           CertificateOekoTex100,
	Key("MADE IN GREEN by OEKO-TEX"):       CertificateOekoTexMadeInGreen,
	Key("Fairtrade"):                       CertificateFairtradeCotton,
	Key("Fairtrade Cotton"):                CertificateFairtradeCotton,
	Key("GRS"):                             CertificateGRS,
	Key("bluesign product"):                CertificateBluesign,
	Key("EU Ecolabel"):                     CertificateEUEcolabel,
	Key("Cradle to Cradle Certified"):      CertificateCradleToCradle,
	Key("RWS"):                             CertificateRWS,
	Key("BCI"):                             CertificateBetterCotton,
	Key("Better Cotton Initiative"):        CertificateBetterCotton,
	Key("Grüner Knopf"):                    CertificateGruenerKnopf,
}

func ParseCertificate(s string) (Certificate, error) {
	if c, ok := certificateAliases[Key(s)]; ok {
		return c, nil
	}
	return parse(certificates, "certificate", s)
}
